// Package main provides the maestro admin CLI. It talks to a running
// maestro-api server over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/maestro-flow/maestro/pkg/models"
)

// Exit codes distinguish operator mistakes from engine faults.
const (
	exitInternal        = 1
	exitValidation      = 2
	exitUnknownWorkflow = 3
	exitUnknownRun      = 4
)

func main() {
	command := &cli.Command{
		Name:                  "maestro",
		Usage:                 "Administer workflow definitions and runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the maestro API",
				Value:   "http://localhost:9090",
				Sources: cli.EnvVars("MAESTRO_SERVER"),
			},
		},
		Commands: []*cli.Command{
			registerCommand(),
			listDefinitionsCommand(),
			startRunCommand(),
			getStatusCommand(),
			listRunsCommand(),
			cancelRunCommand(),
			approvalsCommand(),
			resolveApprovalCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(exitErr.ExitCode())
		}

		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitInternal)
	}
}

func client(command *cli.Command) *Client {
	return NewClient(command.String("server"))
}

// asExit maps API problem types onto CLI exit codes.
func asExit(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return cli.Exit(err.Error(), exitInternal)
	}

	switch apiErr.Type {
	case "validation_error", "conflict":
		return cli.Exit(apiErr.Error(), exitValidation)
	case "workflow_not_found":
		return cli.Exit(apiErr.Error(), exitUnknownWorkflow)
	case "run_not_found", "approval_not_found":
		return cli.Exit(apiErr.Error(), exitUnknownRun)
	default:
		return cli.Exit(apiErr.Error(), exitInternal)
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Register a workflow definition from a JSON file ('-' for stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the definition JSON",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			data, err := readInput(command.String("file"))
			if err != nil {
				return cli.Exit(err.Error(), exitValidation)
			}

			var def models.WorkflowDefinition
			if err := json.Unmarshal(data, &def); err != nil {
				return cli.Exit("invalid definition JSON: "+err.Error(), exitValidation)
			}

			var registered models.WorkflowDefinition
			if err := client(command).post(ctx, "/definitions", &def, &registered); err != nil {
				return asExit(err)
			}

			fmt.Printf("Registered %s@%s as %s\n", registered.UseCaseID, registered.Version, registered.ID)

			return nil
		},
	}
}

func listDefinitionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "definitions",
		Usage: "List registered workflow definitions",
		Action: func(ctx context.Context, command *cli.Command) error {
			var result map[string]any
			if err := client(command).get(ctx, "/definitions", &result); err != nil {
				return asExit(err)
			}

			return printJSON(result)
		},
	}
}

func startRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "start",
		Usage:     "Start a run of a registered workflow",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "version",
				Usage: "Required definition version (any if omitted)",
			},
			&cli.StringFlag{
				Name:  "context",
				Usage: "Initial context as a JSON object",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return cli.Exit("workflow id is required", exitValidation)
			}

			var initialContext map[string]any
			if raw := command.String("context"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &initialContext); err != nil {
					return cli.Exit("invalid context JSON: "+err.Error(), exitValidation)
				}
			}

			body := map[string]any{
				"workflow_id":     workflowID,
				"version":         command.String("version"),
				"initial_context": initialContext,
			}

			var run models.RunContext
			if err := client(command).post(ctx, "/runs", body, &run); err != nil {
				return asExit(err)
			}

			fmt.Printf("Started run %s (%s)\n", run.RunID, run.Status)

			return nil
		},
	}
}

func getStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the state of a run",
		ArgsUsage: "<run-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			runID := command.Args().First()
			if runID == "" {
				return cli.Exit("run id is required", exitValidation)
			}

			var run models.RunContext
			if err := client(command).get(ctx, "/runs/"+runID, &run); err != nil {
				return asExit(err)
			}

			return printJSON(run)
		},
	}
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List runs",
		Action: func(ctx context.Context, command *cli.Command) error {
			var result map[string]any
			if err := client(command).get(ctx, "/runs", &result); err != nil {
				return asExit(err)
			}

			return printJSON(result)
		},
	}
}

func cancelRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a non-terminal run",
		ArgsUsage: "<run-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			runID := command.Args().First()
			if runID == "" {
				return cli.Exit("run id is required", exitValidation)
			}

			if err := client(command).post(ctx, "/runs/"+runID+"/cancel", nil, nil); err != nil {
				return asExit(err)
			}

			fmt.Printf("Cancelled run %s\n", runID)

			return nil
		},
	}
}

func approvalsCommand() *cli.Command {
	return &cli.Command{
		Name:  "approvals",
		Usage: "List pending approval requests",
		Action: func(ctx context.Context, command *cli.Command) error {
			var result map[string]any
			if err := client(command).get(ctx, "/approvals", &result); err != nil {
				return asExit(err)
			}

			return printJSON(result)
		},
	}
}

func resolveApprovalCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "Resolve a pending approval",
		ArgsUsage: "<run-id> <step-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "decision",
				Usage:    "approve or reject",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "actor",
				Usage:    "Who is deciding",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			runID := command.Args().Get(0)
			stepID := command.Args().Get(1)

			if runID == "" || stepID == "" {
				return cli.Exit("run id and step id are required", exitValidation)
			}

			decision := command.String("decision")
			if decision != string(models.ApprovalDecisionApprove) && decision != string(models.ApprovalDecisionReject) {
				return cli.Exit("decision must be 'approve' or 'reject'", exitValidation)
			}

			body := map[string]any{
				"decision": decision,
				"actor":    command.String("actor"),
			}

			if err := client(command).post(ctx, "/runs/"+runID+"/approvals/"+stepID, body, nil); err != nil {
				return asExit(err)
			}

			fmt.Printf("Resolved approval for run %s step %s: %s\n", runID, stepID, decision)

			return nil
		},
	}
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}

	return os.ReadFile(path)
}
