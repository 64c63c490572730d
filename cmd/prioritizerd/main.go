// Command prioritizerd is the CLI front door for locally exercising
// the Prioritization Orchestration Engine (spec.md §1): a composition
// root that wires every internal/prioritize/* collaborator into one
// engine.Service and drives it through a handful of cobra subcommands.
// It stands outside the HTTP/routing surface spec.md §1 explicitly
// places out of scope; this binary exists only so a developer can run
// a prioritization pass against a local SQLite store without a server.
//
// Grounded on cmd/root.go's cobra-root-plus-subcommands shape and
// cmd/add.go's LLM-config-from-viper wiring pattern.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskwing-labs/prioritizer/internal/config"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/clockutil"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/embedstore"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/engine"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/gaps"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/hybrid"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/manualtask"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/prioritizerconfig"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/progress"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/reflection"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/scoring"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/session"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/store"
)

var (
	storeDir string
	userID   string
)

func main() {
	root := &cobra.Command{
		Use:   "prioritizerd",
		Short: "Local front door for the prioritization engine",
	}
	root.PersistentFlags().StringVar(&storeDir, "store-dir", defaultStoreDir(), "directory holding prioritizer.db")
	root.PersistentFlags().StringVar(&userID, "user", "local", "user id to act as")

	root.AddCommand(
		newOutcomeCmd(),
		newIngestCmd(),
		newStartCmd(),
		newStatusCmd(),
		newScoresCmd(),
		newWatchCmd(),
		newReflectionCmd(),
		newManualTaskCmd(),
		newGapsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func defaultStoreDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".prioritizer"
	}
	return filepath.Join(home, ".prioritizer")
}

// composition wires every collaborator into one engine.Service. It is
// rebuilt per command invocation rather than held as package-level
// state, matching spec.md §9's "never as implicit module-level mutable
// state" design note.
type composition struct {
	svc    *engine.Service
	db     *store.SQLiteStore
	cfg    prioritizerconfig.Config
	clock  clockutil.Clock
	embeds *embedstore.Service
}

func buildComposition() (*composition, error) {
	cfg, err := prioritizerconfig.Load(viper.New())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(storeDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	clock := clockutil.System{}

	// internal/config owns provider/model/base-URL/timeout resolution
	// (including the Ollama/Bedrock/TEI endpoint defaults); only the
	// prioritizer's own env keys override it here.
	llmCfg, err := config.LoadLLMConfig()
	if err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}
	if cfg.LLMAPIKey != "" {
		llmCfg.APIKey = cfg.LLMAPIKey
	}
	if cfg.EmbeddingModelID != "" {
		llmCfg.EmbeddingModel = cfg.EmbeddingModelID
	}

	embeds := embedstore.NewService(db, llmCfg)

	classifier := reflection.NewClassifier(llmCfg)
	adjuster := reflection.NewAdjuster(classifier)

	sessions := session.NewService(db, clock, adjuster)

	generator := hybrid.NewGenerator(llmCfg, clock)
	evaluator := hybrid.NewGenerator(llmCfg, clock)
	loop := hybrid.NewLoop(generator, evaluator, clock)

	estimator := scoring.NewEstimator(llmCfg)
	retryQueue := scoring.NewRetryQueue(clock, db)
	scoringSvc := scoring.NewService(estimator, retryQueue)

	taskLookup := func(taskID string) (string, float64, bool) {
		t, err := db.GetTaskEmbedding(taskID)
		if err != nil || t == nil {
			return "", 0, false
		}
		return t.TaskText, 0, true
	}
	embeddingLookup := func(taskID string) ([]float32, bool) {
		t, err := db.GetTaskEmbedding(taskID)
		if err != nil || t == nil {
			return nil, false
		}
		return t.Embedding, true
	}
	detector := gaps.NewDetector(taskLookup, embeddingLookup)
	bridging := gaps.NewBridgingGenerator(llmCfg, embeds)
	acceptor := gaps.NewAcceptor(db, embeds)
	gapsSvc := gaps.NewService(detector, bridging, acceptor, db)

	var eng *engine.Service
	debouncer := reflection.NewDebouncer(clock, func(uid string) {
		outcome, err := db.GetActiveOutcome(uid)
		if err != nil || outcome == nil || eng == nil {
			return
		}
		eng.AdjustPrioritiesForLatestSession(uid, outcome.ID)
	})
	reflectionSvc := reflection.NewService(db, classifier, adjuster, debouncer)

	placer := manualtask.NewPlacer(llmCfg, embeds)
	manualSvc := manualtask.NewService(db, placer)

	quality := engine.NewQualityEvaluator(llmCfg)

	eng = engine.NewService(db, clock, engine.DefaultConfig(), sessions, loop, scoringSvc, gapsSvc, reflectionSvc, manualSvc, embeds, quality)

	return &composition{svc: eng, db: db, cfg: cfg, clock: clock, embeds: embeds}, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newOutcomeCmd() *cobra.Command {
	var direction, object, metric, clarifier string
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Declare and activate the user's outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			now := comp.clock.Now()
			o := &models.Outcome{
				ID:        uuid.NewString(),
				UserID:    userID,
				Direction: models.Direction(direction),
				ObjectText: object,
				MetricText: metric,
				Clarifier: clarifier,
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			o.Assemble()
			if err := o.Validate(); err != nil {
				return err
			}
			if err := comp.db.CreateOutcome(o); err != nil {
				return err
			}
			if err := comp.db.ActivateOutcome(userID, o.ID, now); err != nil {
				return err
			}
			printJSON(o)
			return nil
		},
	}
	cmd.Flags().StringVar(&direction, "direction", "launch", "increase|decrease|launch|ship")
	cmd.Flags().StringVar(&object, "object", "", "what the outcome is about")
	cmd.Flags().StringVar(&metric, "metric", "", "how success is measured")
	cmd.Flags().StringVar(&clarifier, "clarifier", "", "optional extra qualifier")
	return cmd
}

func newIngestCmd() *cobra.Command {
	var documentID string
	cmd := &cobra.Command{
		Use:   "ingest <task text...>",
		Short: "Embed and store a candidate task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			text := args[0]
			for _, a := range args[1:] {
				text += " " + a
			}
			te, err := comp.embeds.IngestTask(ctx, uuid.NewString(), text, false, userID, comp.clock.Now())
			if err != nil {
				return err
			}
			if documentID != "" {
				te.DocumentID = documentID
				_ = comp.db.UpsertTaskEmbedding(te)
			}
			printJSON(te)
			return nil
		},
	}
	cmd.Flags().StringVar(&documentID, "document", "", "source document id")
	return cmd
}

func newStartCmd() *cobra.Command {
	var outcomeID string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a prioritization session (§4.1 StartSession)",
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			if outcomeID == "" {
				outcome, err := comp.db.GetActiveOutcome(userID)
				if err != nil {
					return err
				}
				outcomeID = outcome.ID
			}
			sessionID, err := comp.svc.StartPrioritization(userID, outcomeID)
			if err != nil {
				return err
			}
			fmt.Println(sessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&outcomeID, "outcome", "", "outcome id (defaults to the user's active outcome)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <session_id>",
		Short: "Read a session's current state (§4.1 GetSession)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			sess, err := comp.svc.GetSession(args[0])
			if err != nil {
				return err
			}
			printJSON(sess)
			return nil
		},
	}
	return cmd
}

func newScoresCmd() *cobra.Command {
	var statusFilter string
	cmd := &cobra.Command{
		Use:   "scores <session_id>",
		Short: "Read a session's strategic scores and retry status (§6 GetScores)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			snap, err := comp.svc.GetScores(args[0], scoring.JobStatus(statusFilter))
			if err != nil {
				return err
			}
			printJSON(snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&statusFilter, "status", "", "queued|retrying|failed|succeeded")
	return cmd
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <session_id>",
		Short: "Stream a session's progress until it closes (§4.7 Progress Stream)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			for ev := range comp.svc.StreamSessionProgress(ctx, args[0]) {
				printJSON(ev)
				if ev.Type == progress.EventClose || ev.Type == progress.EventError {
					return nil
				}
			}
			return nil
		},
	}
	return cmd
}

func newReflectionCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "reflection", Short: "Manage reflections (§4.5)"}

	add := &cobra.Command{
		Use:   "add <text>",
		Short: "Create a reflection and classify its intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			r, intent, err := comp.svc.CreateReflection(ctx, userID, args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]any{"reflection": r, "intent": intent})
			return nil
		},
	}

	var active bool
	toggle := &cobra.Command{
		Use:   "toggle <reflection_id>",
		Short: "Toggle a reflection's active-for-prioritization flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()
			return comp.svc.ToggleReflection(userID, args[0], active)
		},
	}
	toggle.Flags().BoolVar(&active, "active", true, "set active-for-prioritization")

	adjust := &cobra.Command{
		Use:   "adjust <session_id>",
		Short: "Recompute a session's adjusted plan from active reflections (§6 AdjustPriorities)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			plan, diff, warning, err := comp.svc.AdjustPriorities(ctx, args[0], nil)
			if err != nil {
				return err
			}
			printJSON(map[string]any{"plan": plan, "diff": diff, "stale_warning": warning})
			return nil
		},
	}

	cmd.AddCommand(add, toggle, adjust)
	return cmd
}

func newManualTaskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "manual-task", Short: "Manual task placement (§4.6)"}

	create := &cobra.Command{
		Use:   "create <session_id> <task text...>",
		Short: "Add a single task and analyze its placement",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()

			text := args[1]
			for _, a := range args[2:] {
				text += " " + a
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			mt, err := comp.svc.CreateManualTask(ctx, args[0], text, userID)
			if err != nil {
				return err
			}
			printJSON(mt)
			return nil
		},
	}

	invalidate := &cobra.Command{
		Use:   "invalidate <outcome_id>",
		Short: "Discard every prioritized manual task for a superseded outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()
			n, err := comp.svc.InvalidateManualTasks(args[0])
			if err != nil {
				return err
			}
			fmt.Println("invalidated:", n)
			return nil
		},
	}

	cmd.AddCommand(create, invalidate)
	return cmd
}

func newGapsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "gaps", Short: "Gap detection and bridging (§4.4)"}

	detect := &cobra.Command{
		Use:   "detect <session_id>",
		Short: "Detect dependency/skill/time gaps in a session's baseline plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()
			gapsFound, meta, err := comp.svc.DetectGaps(args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]any{"gaps": gapsFound, "metadata": meta})
			return nil
		},
	}

	suggest := &cobra.Command{
		Use:   "suggest <session_id>",
		Short: "Generate bridging-task suggestions for detected gaps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			comp, err := buildComposition()
			if err != nil {
				return err
			}
			defer comp.db.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			result, err := comp.svc.SuggestBridging(ctx, args[0])
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}

	cmd.AddCommand(detect, suggest)
	return cmd
}
