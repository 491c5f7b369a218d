package cli

import (
	"errors"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/progress"
	"github.com/rcliao/polymath/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "progress <article-id>",
		Short: "Show the saved reading position",
		Args:  cobra.ExactArgs(1),
		Run:   runProgress,
	}

	set := &cobra.Command{
		Use:   "set <article-id>",
		Short: "Record a reading position",
		Args:  cobra.ExactArgs(1),
		Run:   runProgressSet,
	}
	set.Flags().Float64("offset", 0, "Scroll offset in pixels")
	set.Flags().Float64("max", 0, "Maximum scrollable offset in pixels (required)")
	set.Flags().String("snippet", "", "Text visible at the offset")
	set.MarkFlagRequired("max")

	restore := &cobra.Command{
		Use:   "restore <article-id>",
		Short: "Resolve where a view of the given height would restore to",
		Args:  cobra.ExactArgs(1),
		Run:   runProgressRestore,
	}
	restore.Flags().Float64("max", 0, "Maximum scrollable offset of the view (required)")
	restore.Flags().String("snippet", "", "Text the view shows at the saved offset")
	restore.MarkFlagRequired("max")

	cmd.AddCommand(set, restore)

	RootCmd.AddCommand(cmd)
}

func runProgress(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	p, err := s.GetProgress(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		exitErr("progress", fmt.Errorf("no reading position saved for %s", args[0]))
	}
	if err != nil {
		exitErr("progress", err)
	}
	if outputFormat() == "json" {
		printJSON(p)
		return
	}
	fmt.Printf("%s: %.0f%% (offset %.0f, %s)\n", p.ResourceID, p.Percent, p.ScrollOffset, formatAge(p.UpdatedAt))
	if p.Snippet != "" {
		fmt.Printf("  %q\n", p.Snippet)
	}
}

// fixedView is a viewport parked at one offset.
type fixedView struct {
	offset, max float64
	snippet     string
}

func (v *fixedView) ScrollOffset() float64    { return v.offset }
func (v *fixedView) MaxScroll() float64       { return v.max }
func (v *fixedView) ScrollTo(offset float64)  { v.offset = math.Min(offset, v.max) }
func (v *fixedView) SnippetAt(float64) string { return v.snippet }

func runProgressSet(cmd *cobra.Command, args []string) {
	offset, _ := cmd.Flags().GetFloat64("offset")
	max, _ := cmd.Flags().GetFloat64("max")
	snippet, _ := cmd.Flags().GetString("snippet")
	if max <= 0 || offset < 0 {
		exitErr("progress", fmt.Errorf("--max must be positive and --offset non-negative"))
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	view := &fixedView{offset: offset, max: max, snippet: snippet}
	tracker := progress.New(s, args[0], view, trackerOptions())
	if err := tracker.Close(cmd.Context()); err != nil {
		exitErr("save progress", err)
	}
	fmt.Printf(`{"ok":true,"percent":%.2f}`+"\n", progress.Percent(offset, max))
}

func runProgressRestore(cmd *cobra.Command, args []string) {
	max, _ := cmd.Flags().GetFloat64("max")
	snippet, _ := cmd.Flags().GetString("snippet")

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	view := &fixedView{max: max, snippet: snippet}
	res, err := progress.New(s, args[0], view, trackerOptions()).Restore(cmd.Context())
	if err != nil {
		exitErr("restore", err)
	}
	printJSON(res)
}

func trackerOptions() progress.Options {
	cfg := loadConfig()
	return progress.Options{
		Debounce:          cfg.Debounce(),
		Tolerance:         cfg.Progress.TolerancePX,
		MaxAttempts:       cfg.Progress.MaxAttempts,
		BaseDelay:         cfg.RestoreDelay(),
		MinRestorePercent: cfg.Progress.MinRestorePercent,
	}
}
