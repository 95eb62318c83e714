package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/intake-triage/internal/bootstrap"
	"github.com/kirillkom/intake-triage/internal/config"
	"github.com/kirillkom/intake-triage/internal/core/domain"
	"github.com/kirillkom/intake-triage/internal/core/safety"
	"github.com/kirillkom/intake-triage/internal/core/usecase"
	"github.com/kirillkom/intake-triage/internal/infrastructure/repository/memory"
	"github.com/kirillkom/intake-triage/internal/infrastructure/resilience"
	"github.com/kirillkom/intake-triage/internal/infrastructure/rulesource/yamlfile"
	"github.com/kirillkom/intake-triage/internal/observability/logging"
)

var errRejected = errors.New("one or more rule versions were rejected")

// ruleReport is one line of command output.
type ruleReport struct {
	File           string   `json:"file"`
	OrganizationID string   `json:"organization_id,omitempty"`
	RuleKey        string   `json:"rule_key"`
	OK             bool     `json:"ok"`
	Version        int      `json:"version,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "rulectl",
		Short:        "Validate, activate and try out safety rule files",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().String("log-level", "warn", "Log level for diagnostics on stderr")

	root.AddCommand(validateCmd())
	root.AddCommand(activateCmd())
	root.AddCommand(evaluateCmd())
	return root
}

func commandLogger(cmd *cobra.Command) *slog.Logger {
	level, _ := cmd.Flags().GetString("log-level")
	return logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "rulectl", level)
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE...",
		Short: "Check rule files against the schema and activation guard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := safety.NewConfigValidator()
			if err != nil {
				return err
			}
			checker := usecase.NewRuleActivationUseCase(validator, nil, commandLogger(cmd))

			enc := json.NewEncoder(cmd.OutOrStdout())
			rejected := false
			for _, path := range args {
				reqs, err := yamlfile.Load(path)
				if err != nil {
					return err
				}
				for _, req := range reqs {
					res := checker.Check(req)
					rejected = rejected || !res.OK
					if err := enc.Encode(newRuleReport(path, req, res)); err != nil {
						return err
					}
				}
			}
			if rejected {
				return errRejected
			}
			return nil
		},
	}
}

func activateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activate FILE...",
		Short: "Store rule files as the active versions in the configured store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			org, _ := cmd.Flags().GetString("org")
			logger := commandLogger(cmd)

			cfg := config.Load()
			cfg.RulesPath = ""
			oneShot := resilience.OneShotConfig()
			app, err := bootstrap.New(cmd.Context(), cfg, bootstrap.Options{
				Logger:       logger,
				WithoutQueue: true,
				Resilience:   &oneShot,
			})
			if err != nil {
				return err
			}
			defer app.Close()

			return activateFiles(cmd.Context(), app.Rules, args, org, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("org", "", "Organization to activate for; overrides the files")
	return cmd
}

type ruleActivator interface {
	Activate(ctx context.Context, req domain.ActivateRuleRequest) (*domain.ActivateRuleResult, error)
}

func activateFiles(ctx context.Context, rules ruleActivator, paths []string, org string, out io.Writer) error {
	enc := json.NewEncoder(out)
	rejected := false
	for _, path := range paths {
		reqs, err := yamlfile.Load(path)
		if err != nil {
			return err
		}
		for _, req := range reqs {
			if org != "" {
				req.OrganizationID = org
			}
			res, err := rules.Activate(ctx, req)
			if err != nil {
				return fmt.Errorf("activate %s: %w", req.RuleKey, err)
			}
			rejected = rejected || !res.OK
			if err := enc.Encode(newRuleReport(path, req, res)); err != nil {
				return err
			}
		}
	}
	if rejected {
		return errRejected
	}
	return nil
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate INTAKE_FILE",
		Short: "Evaluate a structured intake against built-in and file rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rulesPath, _ := cmd.Flags().GetString("rules")
			verified, _ := cmd.Flags().GetBool("verified")
			org, _ := cmd.Flags().GetString("org")
			logger := commandLogger(cmd)

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read intake: %w", err)
			}
			var req domain.SafetyEvaluationRequest
			if err := json.Unmarshal(raw, &req.Intake); err != nil {
				return domain.WrapError(domain.ErrInvalidInput, "decode intake", err)
			}
			req.EvidenceVerified = verified
			req.OrganizationID = org

			validator, err := safety.NewConfigValidator()
			if err != nil {
				return err
			}
			store := memory.NewStore()
			if rulesPath != "" {
				rules := usecase.NewRuleActivationUseCase(validator, store, logger)
				if err := activateFiles(cmd.Context(), rules, []string{rulesPath}, org, cmd.ErrOrStderr()); err != nil {
					return err
				}
			}

			eval, err := usecase.NewSafetyEvaluationUseCase(safety.NewEngine(), store, logger).Evaluate(cmd.Context(), req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(eval)
		},
	}
	cmd.Flags().String("rules", "", "Rule file or directory to apply on top of the built-in catalog")
	cmd.Flags().Bool("verified", false, "Treat the intake evidence as verified")
	cmd.Flags().String("org", "", "Organization whose rules apply")
	return cmd
}

func newRuleReport(path string, req domain.ActivateRuleRequest, res *domain.ActivateRuleResult) ruleReport {
	return ruleReport{
		File:           path,
		OrganizationID: req.OrganizationID,
		RuleKey:        req.RuleKey,
		OK:             res.OK,
		Version:        res.Version,
		Errors:         res.Errors,
		Warnings:       res.Warnings,
	}
}
