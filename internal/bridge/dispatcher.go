package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ispledger/internal/backup"
	"ispledger/internal/console"
	"ispledger/internal/log"
)

var ErrUnknownAction = errors.New("unknown action")

// Backups is the part of the backup service the host exposes to the UI.
type Backups interface {
	Push(ctx context.Context) ([]backup.Result, error)
	PushLocal(ctx context.Context, body []byte) (backup.Object, error)
	List(ctx context.Context) ([]backup.Object, error)
}

// Commands runs diagnostic commands on the host.
type Commands interface {
	Start(ctx context.Context, id, line string, sink console.Sink) error
	Kill(id string) error
}

// Dispatcher answers UI actions on the host side.
type Dispatcher struct {
	transport Transport
	backups   Backups
	commands  Commands
	version   string
	latest    string
	authURL   func() (string, error)
	logger    *log.Logger

	// OnHandled, when set, observes every handled action.
	OnHandled func(action string, err error)
}

type DispatcherOption func(*Dispatcher)

func WithBackups(b Backups) DispatcherOption {
	return func(d *Dispatcher) { d.backups = b }
}

func WithCommands(c Commands) DispatcherOption {
	return func(d *Dispatcher) { d.commands = c }
}

// WithVersions sets the running version and the newest published one.
func WithVersions(current, latest string) DispatcherOption {
	return func(d *Dispatcher) { d.version, d.latest = current, latest }
}

// WithAuthURL sets how the Google consent URL is produced.
func WithAuthURL(fn func() (string, error)) DispatcherOption {
	return func(d *Dispatcher) { d.authURL = fn }
}

func WithLogger(l *log.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

func NewDispatcher(t Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		logger:    log.FromSlog(nil, log.ComponentBridge),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run announces the host and handles actions until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	msgs, err := d.transport.Receive(ctx)
	if err != nil {
		return fmt.Errorf("receive: %w", err)
	}
	if err := d.reply(ctx, TypeHostReady, "", UpdateInfo{Current: d.version, Latest: d.latest}); err != nil {
		d.logger.WarnContext(ctx, "Failed to announce host", log.FieldError, err)
	}
	d.logger.InfoContext(ctx, "Bridge dispatcher started")

	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "Bridge dispatcher stopped", "reason", ctx.Err())
			return nil
		case m, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := d.Handle(ctx, m); err != nil {
				d.logger.Failure(ctx, "Bridge action failed", err, log.FieldAction, m.Name())
			}
		}
	}
}

// Handle processes one UI action.
func (d *Dispatcher) Handle(ctx context.Context, m Message) (err error) {
	defer func() {
		if d.OnHandled != nil {
			d.OnHandled(m.Name(), err)
		}
	}()

	d.logger.DebugContext(ctx, "Handling bridge action", log.FieldAction, m.Action, log.FieldMessageID, m.ID)
	switch m.Action {
	case ActionBackupLocal:
		return d.backupLocal(ctx, m)
	case ActionDriveUpload:
		return d.driveUpload(ctx)
	case ActionDriveList:
		return d.driveList(ctx)
	case ActionRunCmd:
		return d.runCmd(ctx, m)
	case ActionKillCmd:
		return d.killCmd(m)
	case ActionCheckUpdate:
		return d.checkUpdate(ctx)
	case ActionGoogleAuth:
		return d.googleAuth(ctx)
	case ActionSaveDB:
		return d.saveDB(ctx, m)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, m.Name())
	}
}

func (d *Dispatcher) reply(ctx context.Context, typ, id string, payload any) error {
	msg, err := NewEvent(typ, payload)
	if err != nil {
		return err
	}
	msg.ID = id
	return d.transport.Send(ctx, msg)
}

func (d *Dispatcher) backupLocal(ctx context.Context, m Message) error {
	if d.backups == nil {
		return d.reply(ctx, TypeBackupFailed, m.ID, BackupResult{Message: "backups are not configured"})
	}
	obj, err := d.backups.PushLocal(ctx, m.Document())
	if err != nil {
		return errors.Join(err, d.reply(ctx, TypeBackupFailed, m.ID, BackupResult{Target: string(backup.KindLocal), Message: err.Error()}))
	}
	return d.reply(ctx, TypeBackupSuccess, m.ID, BackupResult{Target: string(backup.KindLocal), File: obj.Name})
}

func (d *Dispatcher) driveUpload(ctx context.Context) error {
	if d.backups == nil {
		return d.reply(ctx, TypeBackupFailed, "", BackupResult{Message: "backups are not configured"})
	}
	results, err := d.backups.Push(ctx)
	if err != nil {
		return errors.Join(err, d.reply(ctx, TypeBackupFailed, "", BackupResult{Message: err.Error()}))
	}
	primary := results[0]
	return d.reply(ctx, TypeBackupSuccess, "", BackupResult{Target: string(primary.Target), File: primary.Object.Name})
}

func (d *Dispatcher) driveList(ctx context.Context) error {
	if d.backups == nil {
		return d.reply(ctx, TypeDriveListResult, "", DriveList{Files: []backup.Object{}})
	}
	files, err := d.backups.List(ctx)
	if err != nil {
		return err
	}
	if files == nil {
		files = []backup.Object{}
	}
	return d.reply(ctx, TypeDriveListResult, "", DriveList{Files: files})
}

func (d *Dispatcher) runCmd(ctx context.Context, m Message) error {
	var in RunCmd
	if err := m.Decode(&in); err != nil {
		return err
	}
	if in.ID == "" {
		in.ID = m.ID
	}
	if d.commands == nil {
		return d.reply(ctx, string(console.EventError), in.ID, console.Event{ID: in.ID, Message: "console is not available"})
	}

	sink := func(ev console.Event) {
		if err := d.reply(context.WithoutCancel(ctx), string(ev.Kind), ev.ID, ev); err != nil {
			d.logger.WarnContext(ctx, "Failed to forward command output", log.FieldError, err, "id", ev.ID)
		}
	}
	if err := d.commands.Start(ctx, in.ID, in.Cmd, sink); err != nil {
		return errors.Join(err, d.reply(ctx, string(console.EventError), in.ID, console.Event{ID: in.ID, Message: err.Error()}))
	}
	return nil
}

func (d *Dispatcher) killCmd(m Message) error {
	var in KillCmd
	if err := m.Decode(&in); err != nil {
		return err
	}
	if d.commands == nil {
		return nil
	}
	return d.commands.Kill(in.ID)
}

func (d *Dispatcher) checkUpdate(ctx context.Context) error {
	if !NewerVersion(d.latest, d.version) {
		d.logger.DebugContext(ctx, "No update available", "version", d.version)
		return nil
	}
	return d.reply(ctx, TypeUpdateAvailable, "", UpdateInfo{Current: d.version, Latest: d.latest})
}

func (d *Dispatcher) googleAuth(ctx context.Context) error {
	if d.authURL == nil {
		return d.reply(ctx, TypeGoogleAuthResult, "", GoogleAuth{Error: "Google Drive is not configured"})
	}
	url, err := d.authURL()
	if err != nil {
		return errors.Join(err, d.reply(ctx, TypeGoogleAuthResult, "", GoogleAuth{Error: err.Error()}))
	}
	return d.reply(ctx, TypeGoogleAuthStarted, "", GoogleAuth{Success: true, URL: url})
}

func (d *Dispatcher) saveDB(ctx context.Context, m Message) error {
	var in SaveDB
	if err := m.Decode(&in); err != nil {
		return err
	}
	if strings.EqualFold(in.Status, "error") {
		d.logger.WarnContext(ctx, "UI reported a failed save", "message", in.Message, "at", in.Timestamp)
		return nil
	}
	d.logger.DebugContext(ctx, "UI saved state", "at", in.Timestamp)
	return nil
}

// NewerVersion reports whether dotted version a is newer than b. A leading
// "v" is ignored and missing components count as zero.
func NewerVersion(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	pa, pb := versionParts(a), versionParts(b)
	for i := range max(len(pa), len(pb)) {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			return x > y
		}
	}
	return false
}

func versionParts(v string) []int {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexAny(v, "-+"); i >= 0 {
		v = v[:i]
	}
	var out []int
	for _, p := range strings.Split(v, ".") {
		n, _ := strconv.Atoi(p)
		out = append(out, n)
	}
	return out
}
