package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/surge-downloader/ferry/internal/clipboard"
	"github.com/surge-downloader/ferry/internal/download"
	"github.com/surge-downloader/ferry/internal/engine"
	"github.com/surge-downloader/ferry/internal/engine/progress"
	"github.com/surge-downloader/ferry/internal/engine/single"
	"github.com/surge-downloader/ferry/internal/engine/types"
	"github.com/surge-downloader/ferry/internal/state"
	"github.com/surge-downloader/ferry/internal/tui"
	"github.com/surge-downloader/ferry/internal/utils"
)

// foreground is one transfer run by this process, recorded in the session
// store so a later 'ferry get' of the same URL can resume it
type foreground struct {
	ctrl *download.Controller
	rec  state.Session

	mu   sync.Mutex
	last *download.Settlement
}

// resolveDestination picks the file to write. A stored session for the
// same URL and destination whose partial file still exists supplies the
// resume offset; otherwise the name is made unique.
func resolveDestination(ctx context.Context, client *http.Client, rawurl, dir, filename string, runtime *types.RuntimeConfig) (state.Session, error) {
	if filename == "" {
		probe, err := engine.ProbeServer(ctx, client, rawurl, runtime)
		if err != nil {
			return state.Session{}, err
		}
		filename = probe.Filename
	}
	dest := filepath.Join(dir, filename)
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}

	if rec, err := state.FindSession(rawurl, dest); err == nil && rec.Status != state.StatusCompleted {
		if _, statErr := os.Stat(dest + types.IncompleteSuffix); statErr == nil {
			utils.Debug("resuming session %s at %d", rec.ID, rec.ResumeOffset)
			return *rec, nil
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		utils.Debug("session lookup failed: %v", err)
	}

	dest = utils.UniqueFilePath(dest)
	return state.Session{
		URL:       rawurl,
		DestPath:  dest,
		Filename:  filepath.Base(dest),
		TotalSize: -1,
	}, nil
}

func newForeground(client *http.Client, rec state.Session, runtime *types.RuntimeConfig) *foreground {
	f := &foreground{rec: rec}
	f.ctrl = download.NewController(
		single.NewDownloader(client, runtime),
		download.NewFileDestination(rec.DestPath),
		rec.URL,
		download.WithResumeOffset(rec.ResumeOffset),
		download.WithObserver(progress.NewObserver(progress.WithWindow(runtime.GetRateWindow()))),
		download.WithLogger(utils.Logger("get")),
		download.WithOnSettled(f.settled),
	)
	return f
}

func (f *foreground) settled(st download.Settlement) {
	status := st.StoredStatus()
	if status == "" {
		return
	}
	f.mu.Lock()
	f.last = &st
	f.mu.Unlock()

	errText := ""
	if st.Err != nil {
		errText = st.Err.Error()
	}
	f.save(status, st.ResumeOffset, errText)
}

func (f *foreground) save(status string, offset uint64, errText string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.rec.Status = status
	f.rec.ResumeOffset = offset
	f.rec.Error = errText
	if p, ok := f.ctrl.Observer().Current(); ok {
		if total, known := p.Target.Get(); known {
			f.rec.TotalSize = int64(total)
		}
	}
	if err := state.SaveSession(&f.rec); err != nil {
		utils.Debug("failed to save session: %v", err)
	}
}

func (f *foreground) settlement() *download.Settlement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *foreground) start() error {
	f.save(state.StatusDownloading, f.rec.ResumeOffset, "")
	return f.ctrl.Start()
}

// stop pauses a running transfer and waits for it to settle, so the partial
// file and its offset are kept
func (f *foreground) stop() {
	if f.ctrl.State() == download.Running {
		_ = f.ctrl.Pause()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = f.ctrl.Wait(ctx)
}

// summary prints how the transfer ended and returns its error, if any
func (f *foreground) summary() error {
	if err := f.ctrl.Err(); err != nil {
		return err
	}
	st := f.settlement()
	switch {
	case st == nil:
		return nil
	case st.State == download.Paused:
		fmt.Printf("Paused at %s. Run the same command again to resume.\n", humanize.IBytes(st.ResumeOffset))
	case st.Result.IsSuccess():
		fmt.Printf("Saved %s\n", f.rec.DestPath)
	default:
		fmt.Println("Canceled.")
	}
	return nil
}

func runTUI(f *foreground) error {
	if err := f.start(); err != nil {
		return err
	}
	m := tui.NewModel(f.ctrl, f.rec.Filename, f.rec.URL, globalSettings.UI.RefreshRate)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		f.stop()
		return fmt.Errorf("error running TUI: %w", err)
	}
	f.stop()
	return f.summary()
}

// runPlain prints one progress line per refresh interval. Ctrl+C pauses.
func runPlain(ctx context.Context, f *foreground, every time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, unsubscribe := f.ctrl.Observer().Subscribe()
	defer unsubscribe()

	if err := f.start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = f.ctrl.Wait(context.Background())
		close(done)
	}()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			f.stop()
			<-done
			return f.summary()
		case p := <-snapshots:
			if time.Since(last) >= every {
				last = time.Now()
				fmt.Println(p.String())
			}
		case <-done:
			if p, ok := f.ctrl.Observer().Current(); ok {
				fmt.Println(p.String())
			}
			return f.summary()
		}
	}
}

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "Download a file in the foreground",
	Long: `Download a file from a URL with a live progress view.

Keys: p pauses or resumes, c cancels, q quits (keeping the partial file).
Running the same command again resumes an interrupted download.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outFlag, _ := cmd.Flags().GetString("output")
		filename, _ := cmd.Flags().GetString("filename")
		plain, _ := cmd.Flags().GetBool("plain")
		fromClipboard, _ := cmd.Flags().GetBool("clipboard")

		var rawurl string
		switch {
		case len(args) == 1:
			rawurl = clipboard.NewValidator().ExtractURL(args[0])
			if rawurl == "" {
				return fmt.Errorf("not an http(s) URL: %q", args[0])
			}
		case fromClipboard:
			u, err := clipboard.ReadURL()
			if err != nil {
				return err
			}
			rawurl = u
		default:
			return errors.New("provide a URL or use --clipboard")
		}

		runtime := globalSettings.ToRuntimeConfig()
		client := &http.Client{}

		rec, err := resolveDestination(cmd.Context(), client, rawurl, defaultOutputDir(outFlag), filename, runtime)
		if err != nil {
			return err
		}
		if rec.ResumeOffset > 0 {
			fmt.Printf("Resuming %s from %s\n", rec.Filename, humanize.IBytes(rec.ResumeOffset))
		}

		f := newForeground(client, rec, runtime)
		if plain {
			return runPlain(cmd.Context(), f, time.Second)
		}
		return runTUI(f)
	},
}

func init() {
	getCmd.Flags().StringP("output", "o", "", "Output directory")
	getCmd.Flags().StringP("filename", "f", "", "Output filename (default: from the server)")
	getCmd.Flags().Bool("plain", false, "Print progress lines instead of the TUI")
	getCmd.Flags().Bool("clipboard", false, "Take the URL from the clipboard")
	rootCmd.AddCommand(getCmd)
}
