package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/gimport/internal/config"
	"github.com/steveyegge/gimport/internal/errdefs"
	"github.com/steveyegge/gimport/internal/importer"
	"github.com/steveyegge/gimport/internal/ui"
)

var batchCmd = &cobra.Command{
	Use:   "batch NAME...",
	Short: "Transfer the repositories of many projects in the background",
	Long: `Transfer the git repositories of many projects from one source instance.

Each project runs as a background task: it is locked, skipped when its
repository already exists locally, and otherwise mirrored from the source.
Tasks do not configure projects or replay changes; run 'gimport project'
for that. Projects are read from the arguments and from --file (one per line,
'#' starts a comment).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")
		user, _ := cmd.Flags().GetString("user")
		pass, _ := cmd.Flags().GetString("pass")
		file, _ := cmd.Flags().GetString("file")
		workers, _ := cmd.Flags().GetInt("workers")
		if !cmd.Flags().Changed("workers") {
			workers = config.GetInt(config.KeyWorkers)
		}

		names := append([]string(nil), args...)
		if file != "" {
			listed, err := readProjectList(file)
			if err != nil {
				return err
			}
			names = append(names, listed...)
		}
		if len(names) == 0 {
			return errdefs.BadRequest("no projects given")
		}
		if err := importer.ValidateSource(from, user); err != nil {
			return err
		}
		pass, err := resolvePassword(pass, user, from)
		if err != nil {
			return err
		}

		e, err := openEnv(rootCtx)
		if err != nil {
			return err
		}
		tasks := make([]importer.Task, 0, len(names))
		for _, n := range names {
			tasks = append(tasks, importer.Task{Name: n, From: from, User: user, Pass: pass})
		}
		s := &importer.Scheduler{Importer: importer.NewProjectImporter(e.deps), Workers: workers}
		results := s.Run(rootCtx, tasks)

		failed := 0
		for _, r := range results {
			if r.Outcome == importer.ResultFailed {
				failed++
			}
		}
		if jsonOutput {
			outputJSON(results)
		} else {
			for _, r := range results {
				fmt.Println(ui.Status(string(r.Outcome), r.Message))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d tasks failed", failed, len(results))
		}
		return nil
	},
}

// readProjectList reads one project name per line. Blank lines and lines
// starting with '#' are ignored.
func readProjectList(path string) ([]string, error) {
	// #nosec G304 - path comes from the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open project list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read project list: %w", err)
	}
	return names, nil
}

func init() {
	addSourceFlags(batchCmd)
	batchCmd.Flags().String("file", "", "Read project names from this file, one per line")
	batchCmd.Flags().Int("workers", importer.DefaultWorkers, "Number of concurrent transfers (default from config: scheduler.workers)")

	rootCmd.AddCommand(batchCmd)
}
