package patch

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gzhole/lca/internal/logger"
	"github.com/gzhole/lca/internal/pathguard"
)

const (
	newFileMode = 0o644
	newDirMode  = 0o755
	stagePrefix = ".lca-stage-*"
)

// Audit outcomes.
const (
	OutcomeApplied        = "applied"
	OutcomeConflict       = "conflict"
	OutcomeDryRun         = "dry_run"
	OutcomeDryRunConflict = "dry_run_conflict"
	OutcomeError          = "error"
)

var errNotRegular = errors.New("not a regular file")

// Recorder receives the single audit record of each Apply.
type Recorder interface {
	Log(rec logger.Record) error
}

// Applier is the only component that writes patched files. It holds no
// lock; callers must not run two applies against one root at once.
type Applier struct {
	guard *pathguard.Guard
	rec   Recorder
}

// NewApplier returns an Applier confined to guard's root. rec may be nil.
func NewApplier(guard *pathguard.Guard, rec Recorder) *Applier {
	return &Applier{guard: guard, rec: rec}
}

// fileState is the in-memory view of one target file while a PatchSet is
// validated. Groups naming the same file apply in order to content.
type fileState struct {
	path     string // resolved
	rel      string // as first named in the patch
	original []byte
	existed  bool
	perm     fs.FileMode
	content  []byte
	exists   bool
	touched  bool

	staged string // temp file in the target directory
}

// Apply validates every group and, in Commit mode, writes the result only
// if every group validated. Expected failures are reported per group in
// the Result; an error means the filesystem itself failed, in which case
// any files already replaced have been restored.
func (a *Applier) Apply(set *PatchSet, mode Mode) (*Result, error) {
	start := time.Now()
	res, err := a.apply(set, mode)
	if logErr := a.record(set, mode, res, err, time.Since(start)); logErr != nil {
		err = errors.Join(err, logErr)
	}
	return res, err
}

func (a *Applier) apply(set *PatchSet, mode Mode) (*Result, error) {
	res := &Result{Mode: mode, Groups: make([]GroupResult, len(set.Groups))}
	files := make(map[string]*fileState)
	groupFile := make([]*fileState, len(set.Groups))
	var order []*fileState

	clean := true
	for i, g := range set.Groups {
		gr, st, err := a.validate(g, files)
		if err != nil {
			return nil, err
		}
		res.Groups[i] = gr
		groupFile[i] = st
		if gr.Outcome == Conflict {
			clean = false
			continue
		}
		if !st.touched {
			st.touched = true
			order = append(order, st)
		}
	}

	if !clean {
		skipApplied(res)
		return res, nil
	}
	if mode == DryRun {
		res.Applied = true
		return res, nil
	}

	escaped, detail, err := a.commit(order)
	if err != nil {
		return nil, err
	}
	if escaped != nil {
		skipApplied(res)
		for i, st := range groupFile {
			if st == escaped {
				res.Groups[i] = GroupResult{Path: set.Groups[i].Path, Outcome: Conflict, Reason: ReasonPathEscape, Detail: detail}
			}
		}
		return res, nil
	}
	res.Applied = true
	return res, nil
}

// skipApplied marks groups that validated but were not written.
func skipApplied(res *Result) {
	for i, g := range res.Groups {
		if g.Outcome == Applied {
			res.Groups[i] = GroupResult{
				Path:    g.Path,
				Outcome: Skipped,
				Reason:  ReasonOtherGroup,
				Detail:  "not written because another group failed",
			}
		}
	}
}

// validate checks one group against the current in-memory content of its
// target and, on success, advances that content.
func (a *Applier) validate(g FileGroup, files map[string]*fileState) (GroupResult, *fileState, error) {
	gr := GroupResult{Path: g.Path, Outcome: Applied}
	conflict := func(reason ConflictReason, detail string) (GroupResult, *fileState, error) {
		gr.Outcome = Conflict
		gr.Reason = reason
		gr.Detail = detail
		return gr, nil, nil
	}

	resolved, err := a.guard.Resolve(g.Path)
	if err != nil {
		return conflict(ReasonPathEscape, err.Error())
	}

	st, ok := files[resolved]
	if !ok {
		st, err = loadFile(resolved, g.Path)
		if errors.Is(err, errNotRegular) {
			return conflict(ReasonNotRegularFile, fmt.Sprintf("%s is %v", g.Path, err))
		}
		if err != nil {
			return gr, nil, err
		}
		files[resolved] = st
	}

	if !st.exists && !g.onlyAdds() {
		return conflict(ReasonFileMissing, g.Path+" does not exist")
	}
	if g.IsCreate() && st.exists && len(st.content) > 0 {
		return conflict(ReasonFileExists, g.Path+" already exists")
	}

	updated, reason, detail := applyHunks(st.content, g.Hunks)
	if reason != ReasonNone {
		return conflict(reason, detail)
	}

	if g.IsDelete() {
		if len(updated) > 0 {
			return conflict(ReasonContextMismatch, "content remains after removing every line of "+g.Path)
		}
		st.exists = false
		st.content = nil
	} else {
		st.exists = true
		st.content = updated
	}
	return gr, st, nil
}

func loadFile(resolved, rel string) (*fileState, error) {
	st := &fileState{path: resolved, rel: rel, perm: newFileMode}
	info, err := os.Stat(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", rel, err)
	}
	if !info.Mode().IsRegular() {
		if info.IsDir() {
			return nil, fmt.Errorf("a directory: %w", errNotRegular)
		}
		return nil, fmt.Errorf("%s: %w", info.Mode().Type(), errNotRegular)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	st.original = data
	st.content = data
	st.existed = true
	st.exists = true
	st.perm = info.Mode().Perm()
	return st, nil
}

// commit stages every new content next to its target, then promotes the
// staged files by rename. Each target is re-resolved immediately before it
// is replaced; if one no longer resolves to the same place, everything
// promoted so far is rolled back and that file is returned as escaped.
func (a *Applier) commit(order []*fileState) (escaped *fileState, detail string, err error) {
	var createdDirs []string
	defer func() {
		for _, st := range order {
			if st.staged != "" {
				_ = os.Remove(st.staged)
				st.staged = ""
			}
		}
		if escaped != nil || err != nil {
			pruneDirs(createdDirs)
		}
	}()

	for _, st := range order {
		if !st.exists || (st.existed && bytes.Equal(st.content, st.original)) {
			continue
		}
		dirs, mkErr := ensureDir(filepath.Dir(st.path))
		createdDirs = append(createdDirs, dirs...)
		if mkErr != nil {
			return nil, "", fmt.Errorf("failed to create directory for %s: %w", st.rel, mkErr)
		}
		tmp, stErr := stageFile(st.path, st.content, st.perm)
		if stErr != nil {
			return nil, "", fmt.Errorf("failed to stage %s: %w", st.rel, stErr)
		}
		st.staged = tmp
	}

	var promoted []*fileState
	for _, st := range order {
		if st.staged == "" && (st.exists || !st.existed) {
			continue
		}
		resolved, resErr := a.guard.Resolve(st.rel)
		if resErr != nil || resolved != st.path {
			detail = fmt.Sprintf("%s changed before it could be written", st.rel)
			if resErr != nil {
				detail = resErr.Error()
			}
			if rbErr := rollback(promoted); rbErr != nil {
				return nil, "", fmt.Errorf("%s; rollback failed: %w", detail, rbErr)
			}
			return st, detail, nil
		}

		var opErr error
		if st.exists {
			opErr = os.Rename(st.staged, st.path)
			if opErr == nil {
				st.staged = ""
			}
		} else {
			opErr = os.Remove(st.path)
		}
		if opErr != nil {
			err = fmt.Errorf("failed to write %s: %w", st.rel, opErr)
			if rbErr := rollback(promoted); rbErr != nil {
				err = errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
			}
			return nil, "", err
		}
		promoted = append(promoted, st)
	}
	return nil, "", nil
}

// rollback restores promoted files, newest first, from their in-memory
// originals.
func rollback(promoted []*fileState) error {
	var errs []error
	for i := len(promoted) - 1; i >= 0; i-- {
		st := promoted[i]
		if !st.existed {
			if err := os.Remove(st.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		tmp, err := stageFile(st.path, st.original, st.perm)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.Rename(tmp, st.path); err != nil {
			_ = os.Remove(tmp)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// stageFile writes content to a new temp file beside target and returns its
// name. The temp file lives in the target's directory so the final rename
// stays on one filesystem.
func stageFile(target string, content []byte, perm fs.FileMode) (string, error) {
	tmpFile, err := os.CreateTemp(filepath.Dir(target), stagePrefix)
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()
	needsCleanup := true
	defer func() {
		if tmpFile != nil {
			_ = tmpFile.Close()
		}
		if needsCleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return "", err
	}
	if err := tmpFile.Sync(); err != nil {
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		tmpFile = nil
		return "", err
	}
	tmpFile = nil
	if err := os.Chmod(tmpPath, perm); err != nil {
		return "", err
	}
	needsCleanup = false
	return tmpPath, nil
}

// ensureDir creates dir and any missing parents, returning the directories
// it created, outermost first.
func ensureDir(dir string) ([]string, error) {
	var missing []string
	for d := dir; ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, newDirMode); err != nil {
		return nil, err
	}
	created := make([]string, len(missing))
	for i, d := range missing {
		created[len(missing)-1-i] = d
	}
	return created, nil
}

// pruneDirs removes directories created for a commit that did not happen,
// innermost first. Non-empty directories are left alone.
func pruneDirs(dirs []string) {
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
}

func (a *Applier) record(set *PatchSet, mode Mode, res *Result, applyErr error, elapsed time.Duration) error {
	if a.rec == nil {
		return nil
	}

	files := set.Files()
	rec := logger.Record{
		Level:      logger.LevelInfo,
		Kind:       logger.KindPatch,
		Summary:    fmt.Sprintf("%s %d file(s): %s", mode, len(files), strings.Join(files, ", ")),
		DurationMs: elapsed.Milliseconds(),
		Files:      files,
	}

	switch {
	case applyErr != nil:
		rec.Level = logger.LevelError
		rec.Outcome = OutcomeError
		rec.Error = applyErr.Error()
	case res.Applied && mode == Commit:
		rec.Outcome = OutcomeApplied
	case res.Applied:
		rec.Outcome = OutcomeDryRun
	case mode == Commit:
		rec.Outcome = OutcomeConflict
	default:
		rec.Outcome = OutcomeDryRunConflict
	}

	if res != nil {
		for _, g := range res.Conflicts() {
			rec.Reasons = append(rec.Reasons, g.String())
			if g.Reason == ReasonPathEscape {
				rec.Level = logger.LevelWarn
			}
		}
	}

	if err := a.rec.Log(rec); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}
