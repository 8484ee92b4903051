package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alexkorol/last-closed-tabgroups/internal/ipc"
	"github.com/alexkorol/last-closed-tabgroups/internal/picker"
	"github.com/alexkorol/last-closed-tabgroups/internal/platform"
	"github.com/alexkorol/last-closed-tabgroups/internal/restore"
	"github.com/alexkorol/last-closed-tabgroups/internal/session"
)

// windowIDList is a repeatable --window flag. Values may also be comma
// separated.
type windowIDList []platform.WindowID

func (l *windowIDList) String() string {
	parts := make([]string, len(*l))
	for i, id := range *l {
		parts[i] = strconv.FormatInt(int64(id), 10)
	}
	return strings.Join(parts, ",")
}

func (l *windowIDList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid window id %q", part)
		}
		*l = append(*l, platform.WindowID(id))
	}
	return nil
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed list [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List the windows saved when the browser's last window closed.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	jsonOut := fs.Bool("json", false, "Output the saved session as JSON")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "list takes no arguments")
		fs.Usage()
		return 2
	}

	client := ipc.NewClient()
	data, err := client.ListSaved()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	printSaved(os.Stdout, data)
	return 0
}

func printSaved(w io.Writer, data *ipc.SavedData) {
	if len(data.Windows) == 0 {
		fmt.Fprintln(w, "No saved windows.")
		return
	}
	if data.SavedAt != nil {
		fmt.Fprintf(w, "Saved %s\n", data.SavedAt.Local().Format("2006-01-02 15:04:05"))
	}
	for _, win := range data.Windows {
		display := win.DisplayID
		if display == "" {
			display = "-"
		}
		fmt.Fprintf(w, "%-8d %-10s %s\n", win.OriginalID, display, win.Label())
		for _, tab := range win.Tabs {
			marker := " "
			if tab.Active {
				marker = "*"
			}
			fmt.Fprintf(w, "           %s %s\n", marker, tab.URL)
		}
	}
}

func runRestore(args []string) int {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed restore [--window ID ...]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Reopen saved windows on their original displays. Without --window all")
		fmt.Fprintln(os.Stderr, "saved windows are restored. IDs come from 'lastclosed list'.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	var ids windowIDList
	fs.Var(&ids, "window", "Saved window id to restore (repeatable)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "restore takes no arguments; use --window")
		fs.Usage()
		return 2
	}

	return reopen(ipc.NewClient(), ids)
}

func runPick(args []string) int {
	fs := flag.NewFlagSet("pick", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed pick [--close]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Choose which saved windows to restore, or with --close which open")
		fmt.Fprintln(os.Stderr, "windows to save and close.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	closeOpen := fs.Bool("close", false, "Pick open windows to save and close")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	client := ipc.NewClient()
	prompt := picker.RestorePrompt
	var windows []session.WindowSnapshot
	if *closeOpen {
		prompt = picker.ClosePrompt
		data, err := client.ListOpen()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		windows = data.Windows
	} else {
		data, err := client.ListSaved()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		windows = data.Windows
	}
	if len(windows) == 0 {
		if *closeOpen {
			fmt.Println("No open windows.")
		} else {
			fmt.Println("No saved windows.")
		}
		return 0
	}

	ids, err := picker.Pick(prompt, windows)
	if errors.Is(err, picker.ErrCancelled) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if len(ids) == 0 {
		fmt.Println("Nothing selected.")
		return 0
	}
	if *closeOpen {
		return saveAndClose(client, ids)
	}
	return reopen(client, ids)
}

func reopen(client *ipc.Client, ids []platform.WindowID) int {
	report, err := client.Reopen(ids)
	if errors.Is(err, ipc.ErrBusy) {
		fmt.Fprintln(os.Stderr, "A restore is already running.")
		return 1
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printReport(os.Stdout, report)
	if len(report.Restored) == 0 && len(report.Failed) > 0 {
		return 1
	}
	return 0
}

func printReport(w io.Writer, report *restore.Report) {
	if report.RecordID == "" {
		fmt.Fprintln(w, "No saved windows.")
		return
	}
	for _, r := range report.Restored {
		fmt.Fprintf(w, "restored %d -> %d on %s (%d tabs)\n", r.OriginalID, r.WindowID, r.DisplayID, r.Tabs)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(w, "failed   %d: %s\n", f.OriginalID, f.Error)
	}
	if report.Skipped > 0 {
		fmt.Fprintf(w, "skipped  %d window(s) without tabs\n", report.Skipped)
	}
	if report.Cleared {
		fmt.Fprintln(w, "Saved session cleared.")
	}
}

func runClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed clear")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Discard the saved session.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	if err := ipc.NewClient().ClearSaved(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runClose(args []string) int {
	fs := flag.NewFlagSet("close", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed close [--window ID ...]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Save open browser windows as the session and close them. Without")
		fmt.Fprintln(os.Stderr, "--window every open window is saved and closed. IDs come from")
		fmt.Fprintln(os.Stderr, "'lastclosed windows'.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	var ids windowIDList
	fs.Var(&ids, "window", "Open window id to save and close (repeatable)")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	return saveAndClose(ipc.NewClient(), ids)
}

func saveAndClose(client *ipc.Client, ids []platform.WindowID) int {
	data, err := client.SaveAndClose(ids)
	if errors.Is(err, ipc.ErrBusy) {
		fmt.Fprintln(os.Stderr, "A restore or close is already running.")
		return 1
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("%s: %d window(s)\n", data.Outcome, data.Windows)
	return 0
}

func runWindows(args []string) int {
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: lastclosed windows [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "List the browser's open windows. IDs are accepted by 'lastclosed close'.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Flags:")
		fs.PrintDefaults()
	}
	jsonOut := fs.Bool("json", false, "Output the open windows as JSON")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "windows takes no arguments")
		fs.Usage()
		return 2
	}

	data, err := ipc.NewClient().ListOpen()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	printOpen(os.Stdout, data)
	return 0
}

func printOpen(w io.Writer, data *ipc.OpenWindowsData) {
	if len(data.Windows) == 0 {
		fmt.Fprintln(w, "No open windows.")
		return
	}
	for _, win := range data.Windows {
		display := win.DisplayID
		if display == "" {
			display = "-"
		}
		fmt.Fprintf(w, "%-8d %-10s %-10s %s\n", win.OriginalID, display, win.State.OrNormal(), win.Label())
	}
}
