package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Border-Link/immigration-ai-sub000/internal/eligibility"
	"github.com/Border-Link/immigration-ai-sub000/internal/model"
	"github.com/Border-Link/immigration-ai-sub000/pkg/anthropic"
)

var (
	checkCaseID       string
	checkVisaCode     string
	checkJurisdiction string
	checkFactsFile    string
	checkEvalFile     string
	checkDate         string
	checkReasoning    bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run an eligibility check for a case",
	Long:  "Combines a deterministic rule evaluation with model reasoning into one eligibility decision. The rule evaluation is produced by the external rules service; pass its JSON output via --evaluation. Case facts come from --facts as a flat JSON object.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		facts, err := readFacts(checkFactsFile)
		if err != nil {
			return err
		}
		eval, err := readEvaluation(checkEvalFile)
		if err != nil {
			return err
		}

		var date *time.Time
		if checkDate != "" {
			d, err := time.Parse("2006-01-02", checkDate)
			if err != nil {
				return eris.Wrapf(err, "parse --date %q", checkDate)
			}
			date = &d
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		reasoning := checkReasoning
		if !cmd.Flags().Changed("reasoning") {
			reasoning = cfg.Eligibility.EnableReasoning
		}

		var reasoner eligibility.Reasoner
		if reasoning {
			reasoner = eligibility.NewModelReasoner(
				anthropic.NewClient(cfg.Anthropic.Key),
				cfg.Anthropic.Model,
				cfg.Anthropic.MaxTokens,
			)
		}

		engine := eligibility.NewEngine(
			&flagCaseLoader{
				caseID:       checkCaseID,
				visaCode:     checkVisaCode,
				jurisdiction: checkJurisdiction,
				facts:        facts,
			},
			&staticRulesEngine{eval: eval},
			reasoner,
			nil, // review tasks are owned by the case-management service
			st,
			cfg.Eligibility.EscalationThreshold,
		)

		result, err := engine.Check(ctx, eligibility.CheckRequest{
			CaseID:          checkCaseID,
			VisaTypeID:      checkVisaCode,
			EvaluationDate:  date,
			EnableReasoning: reasoning,
		})
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkCaseID, "case", "", "case ID under evaluation")
	checkCmd.Flags().StringVar(&checkVisaCode, "visa-code", "", "visa type code, e.g. UK_SKILLED_WORKER")
	checkCmd.Flags().StringVar(&checkJurisdiction, "jurisdiction", "", "jurisdiction code, e.g. UK")
	checkCmd.Flags().StringVar(&checkFactsFile, "facts", "", "JSON file with case facts")
	checkCmd.Flags().StringVar(&checkEvalFile, "evaluation", "", "JSON file with the rule-engine evaluation")
	checkCmd.Flags().StringVar(&checkDate, "date", "", "evaluation date (YYYY-MM-DD), defaults to today")
	checkCmd.Flags().BoolVar(&checkReasoning, "reasoning", true, "run model reasoning alongside the rule evaluation")
	_ = checkCmd.MarkFlagRequired("case")
	_ = checkCmd.MarkFlagRequired("visa-code")
	_ = checkCmd.MarkFlagRequired("evaluation")
	rootCmd.AddCommand(checkCmd)
}

func readFacts(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var facts map[string]any
	if err := json.Unmarshal(raw, &facts); err != nil {
		return nil, eris.Wrapf(err, "decode facts from %s", path)
	}
	return facts, nil
}

func readEvaluation(path string) (*model.RuleEvaluation, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var eval model.RuleEvaluation
	if err := json.Unmarshal(raw, &eval); err != nil {
		return nil, eris.Wrapf(err, "decode evaluation from %s", path)
	}
	return &eval, nil
}

// flagCaseLoader materializes the case from command-line input instead of the
// external case-management service.
type flagCaseLoader struct {
	caseID       string
	visaCode     string
	jurisdiction string
	facts        map[string]any
}

func (l *flagCaseLoader) GetCase(context.Context, string) (*model.Case, error) {
	return &model.Case{ID: l.caseID}, nil
}

func (l *flagCaseLoader) GetVisaType(context.Context, string) (*model.VisaType, error) {
	return &model.VisaType{ID: l.visaCode, Code: l.visaCode, Jurisdiction: l.jurisdiction}, nil
}

func (l *flagCaseLoader) LoadFacts(context.Context, string) (map[string]any, error) {
	return l.facts, nil
}

// staticRulesEngine replays a rule evaluation produced elsewhere.
type staticRulesEngine struct {
	eval *model.RuleEvaluation
}

func (s *staticRulesEngine) RunEvaluation(context.Context, string, string, *time.Time) (*model.RuleEvaluation, error) {
	return s.eval, nil
}
