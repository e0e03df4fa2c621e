package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jwalton/gchalk"
	"github.com/waifuvault/waifuvault-go/internal/app"
	"github.com/waifuvault/waifuvault-go/internal/download"
	"github.com/waifuvault/waifuvault-go/internal/retry"
	"github.com/waifuvault/waifuvault-go/pkg/waifuvault"
)

// call runs op under the container's retry policy. Only reads go through
// it: a request that changes state may have been applied even when its
// reply was lost, so those run once.
func call[T any](ctx context.Context, c *app.Container, op func(ctx context.Context) (T, error)) (T, error) {
	return retry.Value(ctx, c.Retry, op)
}

// perform runs op a single time, or under the retry policy when idempotent.
func perform[T any](ctx context.Context, c *app.Container, idempotent bool, op func(ctx context.Context) (T, error)) (T, error) {
	if idempotent {
		return call(ctx, c, op)
	}
	return op(ctx)
}

func label(s string) string {
	return gchalk.BrightBlue(fmt.Sprintf("%-10s", s+":"))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printFile(w io.Writer, e *waifuvault.FileEntry) error {
	if jsonOutput {
		return printJSON(w, e)
	}

	fmt.Fprintf(w, "%s %s\n", label("Token"), e.Token)
	fmt.Fprintf(w, "%s %s\n", label("URL"), e.URL)
	if e.Bucket != nil {
		fmt.Fprintf(w, "%s %s\n", label("Bucket"), *e.Bucket)
	}
	if e.Album != nil {
		fmt.Fprintf(w, "%s %s (%s)\n", label("Album"), e.Album.Name, e.Album.Token)
	}
	fmt.Fprintf(w, "%s %d\n", label("Views"), e.Views)
	fmt.Fprintf(w, "%s %s\n", label("Retention"), e.RetentionPeriod)
	if e.Options != nil {
		var flags []string
		if e.Options.HideFilename {
			flags = append(flags, "hidden filename")
		}
		if e.Options.OneTimeDownload {
			flags = append(flags, "one-time download")
		}
		if e.Options.Protected {
			flags = append(flags, "password protected")
		}
		if len(flags) == 0 {
			flags = append(flags, "none")
		}
		fmt.Fprintf(w, "%s %s\n", label("Options"), strings.Join(flags, ", "))
	}
	return nil
}

func printFileList(w io.Writer, files []waifuvault.FileEntry) {
	for _, f := range files {
		fmt.Fprintf(w, "  %s  %s\n", f.Token, f.URL)
	}
}

func printBucket(w io.Writer, b *waifuvault.BucketEntry) error {
	if jsonOutput {
		return printJSON(w, b)
	}

	fmt.Fprintf(w, "%s %s\n", label("Bucket"), b.Token)
	fmt.Fprintf(w, "%s %d\n", label("Files"), len(b.Files))
	printFileList(w, b.Files)
	if len(b.Albums) > 0 {
		fmt.Fprintf(w, "%s %d\n", label("Albums"), len(b.Albums))
		for _, a := range b.Albums {
			fmt.Fprintf(w, "  %s  %s\n", a.Token, a.Name)
		}
	}
	return nil
}

func printAlbum(w io.Writer, a *waifuvault.AlbumEntry) error {
	if jsonOutput {
		return printJSON(w, a)
	}

	fmt.Fprintf(w, "%s %s (%s)\n", label("Album"), a.Name, a.Token)
	fmt.Fprintf(w, "%s %s\n", label("Bucket"), a.BucketToken)
	if a.PublicToken != nil {
		fmt.Fprintf(w, "%s %s\n", label("Public"), *a.PublicToken)
	}
	fmt.Fprintf(w, "%s %d\n", label("Files"), len(a.Files))
	printFileList(w, a.Files)
	return nil
}

func printMessage(w io.Writer, m *waifuvault.GenericMessage) error {
	if jsonOutput {
		return printJSON(w, m)
	}

	if m.Success {
		fmt.Fprintln(w, gchalk.BrightGreen("Success: ")+m.Description)
	} else {
		fmt.Fprintln(w, gchalk.BrightYellow("Failed : ")+m.Description)
	}
	return nil
}

func printDeleted(w io.Writer, what string, ok bool) error {
	if jsonOutput {
		return printJSON(w, ok)
	}

	if ok {
		fmt.Fprintln(w, gchalk.BrightGreen("Deleted: ")+what)
	} else {
		fmt.Fprintln(w, gchalk.BrightYellow("Not deleted: ")+what)
	}
	return nil
}

func printSummary(w io.Writer, s *download.Summary) error {
	if jsonOutput {
		errs := make([]string, 0, len(s.Errors))
		for _, err := range s.Errors {
			errs = append(errs, err.Error())
		}
		return printJSON(w, map[string]any{
			"downloaded": s.Downloaded,
			"skipped":    s.Skipped,
			"failed":     s.Failed,
			"errors":     errs,
		})
	}

	for _, err := range s.Errors {
		fmt.Fprintf(w, "%s %v\n", gchalk.BrightRed("Error   :"), err)
	}
	fmt.Fprintf(w, "%s %d downloaded, %d skipped, %d failed\n",
		gchalk.BrightGreen("Complete:"), s.Downloaded, s.Skipped, s.Failed)
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", s.Failed, s.Total())
	}
	return nil
}
