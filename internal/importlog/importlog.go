// Package importlog records the outcome of every import attempt.
//
// Each attempt produces one structured record in the import log (a JSON
// lines file written through zap) and one entry in the audit trail. The
// logger is owned by the Log value; there is no package-level logger.
package importlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/steveyegge/gimport/internal/audit"
	"github.com/steveyegge/gimport/internal/debug"
)

// FileName is the import log's file name inside the data directory.
const FileName = "import_log"

// Record field names.
const (
	FieldAccountID         = "accountId"
	FieldUserName          = "userName"
	FieldFrom              = "from"
	FieldSrcProjectName    = "srcProjectName"
	FieldTargetProjectName = "targetProjectName"
	FieldGroupName         = "groupName"
	FieldError             = "error"
)

// Auditor receives one entry per import. *audit.Trail satisfies it.
type Auditor interface {
	Append(e *audit.Entry) (string, error)
}

// Actor identifies who triggered an import.
type Actor struct {
	AccountID int
	UserName  string
}

// Event describes one finished import attempt. Err is nil on success.
type Event struct {
	Actor         Actor
	From          string
	SourceProject string
	TargetProject string
	Err           error
}

// GroupEvent describes one finished group import attempt.
type GroupEvent struct {
	Actor Actor
	From  string
	Group string
	Err   error
}

// Options configure New. Exactly one of Path or Writer is used; Writer wins.
type Options struct {
	Path   string
	Writer io.Writer
	Audit  Auditor
}

// Log is the import log sink.
type Log struct {
	logger *zap.Logger
	audit  Auditor
	closer io.Closer
}

// New builds a log writing JSON records to opts.Writer or to the file at
// opts.Path, which is created and appended to.
func New(opts Options) (*Log, error) {
	var ws zapcore.WriteSyncer
	var closer io.Closer
	switch {
	case opts.Writer != nil:
		ws = zapcore.AddSync(opts.Writer)
	case opts.Path != "":
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create import log directory: %w", err)
		}
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304 - path from config
		if err != nil {
			return nil, fmt.Errorf("failed to open import log: %w", err)
		}
		ws = zapcore.AddSync(f)
		closer = f
	default:
		return nil, fmt.Errorf("import log needs a path or a writer")
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, zapcore.InfoLevel)

	return &Log{
		logger: zap.New(core).Named(FileName),
		audit:  opts.Audit,
		closer: closer,
	}, nil
}

// NewWithCore builds a log on an existing zap core.
func NewWithCore(core zapcore.Core, auditor Auditor) *Log {
	return &Log{logger: zap.New(core).Named(FileName), audit: auditor}
}

// OnImport records one project import attempt: INFO "OK" on success,
// ERROR "FAIL" with the error otherwise.
func (l *Log) OnImport(e Event) {
	fields := []zap.Field{
		zap.String(FieldAccountID, strconv.Itoa(e.Actor.AccountID)),
		zap.String(FieldUserName, e.Actor.UserName),
		zap.String(FieldFrom, e.From),
		zap.String(FieldSrcProjectName, e.SourceProject),
		zap.String(FieldTargetProjectName, e.TargetProject),
	}
	params := map[string]string{"project": e.SourceProject, "from": e.From}
	l.write(e.Err, fields, audit.KindProjectImport, audit.KindProjectImportFailure, e.Actor, params)
}

// OnGroupImport records one group import attempt.
func (l *Log) OnGroupImport(e GroupEvent) {
	fields := []zap.Field{
		zap.String(FieldAccountID, strconv.Itoa(e.Actor.AccountID)),
		zap.String(FieldUserName, e.Actor.UserName),
		zap.String(FieldFrom, e.From),
		zap.String(FieldGroupName, e.Group),
	}
	params := map[string]string{"group": e.Group, "from": e.From}
	l.write(e.Err, fields, audit.KindGroupImport, audit.KindGroupImportFailure, e.Actor, params)
}

func (l *Log) write(err error, fields []zap.Field, okKind, failKind string, actor Actor, params map[string]string) {
	entry := &audit.Entry{
		Kind:      okKind,
		AccountID: actor.AccountID,
		Actor:     actor.UserName,
		Params:    params,
		Result:    "OK",
	}
	if err == nil {
		l.logger.Info("OK", fields...)
	} else {
		l.logger.Error("FAIL", append(fields, zap.String(FieldError, err.Error()))...)
		entry.Kind = failKind
		entry.Result = err.Error()
	}

	if l.audit == nil {
		return
	}
	if _, aerr := l.audit.Append(entry); aerr != nil {
		// The import already finished; a lost audit entry must not change
		// its outcome.
		debug.Logf("audit append failed: %v\n", aerr)
		l.logger.Warn("audit append failed", zap.Error(aerr))
	}
}

// Close flushes the log and closes its file, if it owns one.
func (l *Log) Close() error {
	_ = l.logger.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
