package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/polymath/internal/capture"
)

func init() {
	cmd := &cobra.Command{
		Use:   "capture [text...]",
		Short: "Capture a note, queueing it while offline",
		Long:  "Submit a capture to the remote API. Reads stdin when no text is given. Offline captures are queued and sent on the next sync.",
		Run:   runCapture,
	}
	cmd.Flags().StringP("kind", "k", capture.DefaultKind, "Capture kind")

	list := &cobra.Command{
		Use:   "captures",
		Short: "List queued captures",
		Run:   runCaptures,
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Resubmit queued captures now",
		Run:   runCapturesFlush,
	}
	list.AddCommand(flush)

	RootCmd.AddCommand(cmd, list)
}

func (a *app) captureQueue() *capture.Queue {
	var submitter capture.Submitter
	if a.api != nil {
		submitter = a.api
	}
	return capture.NewQueue(a.store, submitter, a.online, a.logger)
}

func runCapture(cmd *cobra.Command, args []string) {
	kind, _ := cmd.Flags().GetString("kind")
	body := strings.TrimSpace(strings.Join(args, " "))
	if body == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		body = strings.TrimSpace(string(data))
	}
	if body == "" {
		exitErr("capture", fmt.Errorf("nothing to capture"))
	}

	a := newApp(cmd.Context())
	defer a.close()

	res, err := a.captureQueue().Submit(cmd.Context(), kind, body)
	if err != nil {
		exitErr("capture", err)
	}
	if outputFormat() == "json" {
		printJSON(map[string]any{"ok": true, "queued": res.Queued, "pending": res.Pending})
		return
	}
	if res.Queued {
		fmt.Printf("queued capture %d; it will be sent on the next sync\n", res.Pending.ID)
		return
	}
	fmt.Println("capture sent")
}

func runCaptures(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	pending, err := s.PendingCaptures(cmd.Context())
	if err != nil {
		exitErr("list captures", err)
	}
	if outputFormat() == "json" {
		if pending == nil {
			fmt.Println("[]")
			return
		}
		printJSON(pending)
		return
	}
	rows := make([][]string, 0, len(pending))
	for _, c := range pending {
		rows = append(rows, []string{
			strconv.FormatInt(c.ID, 10), c.Kind, truncate(c.Body, 60),
			formatAge(c.CreatedAt), strconv.Itoa(c.RetryCount), c.LastError,
		})
	}
	fmt.Println(renderTable(
		[]string{"ID", "Kind", "Body", "Created", "Retries", "Last error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}

func runCapturesFlush(cmd *cobra.Command, args []string) {
	a := newApp(cmd.Context())
	defer a.close()
	a.requireAPI()

	res, err := a.captureQueue().Flush(cmd.Context())
	if err != nil {
		exitErr("flush captures", err)
	}
	if outputFormat() == "json" {
		printJSON(res)
		return
	}
	if !a.online.Online() {
		fmt.Println("offline; captures stay queued")
		return
	}
	fmt.Printf("submitted %d, failed %d\n", res.Submitted, res.Failed)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
