package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispledger/internal/backup"
	"ispledger/internal/console"
	"ispledger/internal/core"
	"ispledger/internal/log"
)

type fakeBackups struct {
	pushErr   error
	localBody []byte
	files     []backup.Object
}

func (f *fakeBackups) Push(context.Context) ([]backup.Result, error) {
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	return []backup.Result{{Target: backup.KindDrive, Object: backup.Object{Name: backup.DriveFileName}}}, nil
}

func (f *fakeBackups) PushLocal(_ context.Context, body []byte) (backup.Object, error) {
	f.localBody = body
	if f.pushErr != nil {
		return backup.Object{}, f.pushErr
	}
	return backup.Object{Name: "KAMS_Backup_2025-03-04.json"}, nil
}

func (f *fakeBackups) List(context.Context) ([]backup.Object, error) {
	return f.files, nil
}

type fakeCommands struct {
	started map[string]string
	killed  []string
}

func (f *fakeCommands) Start(_ context.Context, id, line string, sink console.Sink) error {
	if line == "bad" {
		return console.ErrNotAllowed
	}
	f.started[id] = line
	sink(console.Event{Kind: console.EventStarted, ID: id, PID: 42})
	sink(console.Event{Kind: console.EventOutput, ID: id, Line: "Reply from 8.8.8.8"})
	return nil
}

func (f *fakeCommands) Kill(id string) error {
	f.killed = append(f.killed, id)
	return nil
}

func setup(t *testing.T, opts ...DispatcherOption) (*Dispatcher, <-chan Message) {
	t.Helper()
	ui, host := NewPipe(16)
	t.Cleanup(func() { ui.Close(); host.Close() })
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	in, err := ui.Receive(ctx)
	require.NoError(t, err)
	return NewDispatcher(host, append([]DispatcherOption{WithLogger(log.Nop())}, opts...)...), in
}

func next(t *testing.T, in <-chan Message) Message {
	t.Helper()
	select {
	case m := <-in:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func action(t *testing.T, name string, payload any) Message {
	t.Helper()
	m, err := NewAction(name, payload)
	require.NoError(t, err)
	return m
}

func TestPipe_DeliversBothWays(t *testing.T) {
	ctx := context.Background()
	ui, host := NewPipe(1)
	defer ui.Close()
	defer host.Close()

	in, err := host.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, ui.Send(ctx, Message{Action: ActionCheckUpdate}))
	assert.Equal(t, ActionCheckUpdate, next(t, in).Action)

	host.Close()
	assert.ErrorIs(t, ui.Send(ctx, Message{Action: ActionCheckUpdate}), ErrClosed)
}

func TestMessage_JSON(t *testing.T) {
	m := action(t, ActionRunCmd, RunCmd{Cmd: "ping 8.8.8.8", ID: "x1"})
	raw, err := m.ToJSON()
	require.NoError(t, err)

	back, err := MessageFromJSON(raw)
	require.NoError(t, err)
	var rc RunCmd
	require.NoError(t, back.Decode(&rc))
	assert.Equal(t, "x1", rc.ID)

	_, err = MessageFromJSON([]byte(`{"payload":{}}`))
	assert.Error(t, err)
}

func TestMessage_Document(t *testing.T) {
	inline := Message{Payload: json.RawMessage(`{"clients":[]}`)}
	assert.JSONEq(t, `{"clients":[]}`, string(inline.Document()))

	quoted, _ := json.Marshal(`{"clients":[]}`)
	assert.JSONEq(t, `{"clients":[]}`, string(Message{Payload: quoted}.Document()))

	assert.Nil(t, Message{}.Document())
}

func TestHandle_BackupLocal(t *testing.T) {
	b := &fakeBackups{}
	d, in := setup(t, WithBackups(b))
	quoted, _ := json.Marshal(`{"clients":[]}`)

	require.NoError(t, d.Handle(context.Background(), Message{Action: ActionBackupLocal, Payload: quoted}))
	reply := next(t, in)
	assert.Equal(t, TypeBackupSuccess, reply.Type)
	assert.JSONEq(t, `{"clients":[]}`, string(b.localBody))

	var res BackupResult
	require.NoError(t, reply.Decode(&res))
	assert.Equal(t, "KAMS_Backup_2025-03-04.json", res.File)
}

func TestHandle_BackupFailureIsReported(t *testing.T) {
	d, in := setup(t, WithBackups(&fakeBackups{pushErr: errors.New("disk full")}))
	var observed string
	d.OnHandled = func(action string, err error) {
		if err != nil {
			observed = action
		}
	}

	err := d.Handle(context.Background(), Message{Action: ActionDriveUpload})
	require.Error(t, err)
	reply := next(t, in)
	assert.Equal(t, TypeBackupFailed, reply.Type)
	var res BackupResult
	require.NoError(t, reply.Decode(&res))
	assert.Equal(t, "disk full", res.Message)
	assert.Equal(t, ActionDriveUpload, observed)
}

func TestHandle_DriveList(t *testing.T) {
	d, in := setup(t, WithBackups(&fakeBackups{files: []backup.Object{{ID: "f1", Name: backup.DriveFileName}}}))
	require.NoError(t, d.Handle(context.Background(), Message{Action: ActionDriveList}))

	reply := next(t, in)
	assert.Equal(t, TypeDriveListResult, reply.Type)
	var list DriveList
	require.NoError(t, reply.Decode(&list))
	require.Len(t, list.Files, 1)
	assert.Equal(t, "f1", list.Files[0].ID)
}

func TestHandle_RunAndKillCommand(t *testing.T) {
	cmds := &fakeCommands{started: map[string]string{}}
	d, in := setup(t, WithCommands(cmds))
	ctx := context.Background()

	require.NoError(t, d.Handle(ctx, action(t, ActionRunCmd, RunCmd{Cmd: "ping 8.8.8.8", ID: "c1"})))
	assert.Equal(t, "ping 8.8.8.8", cmds.started["c1"])

	started := next(t, in)
	assert.Equal(t, "cmd_started", started.Type)
	assert.Equal(t, "c1", started.ID)
	output := next(t, in)
	var ev console.Event
	require.NoError(t, output.Decode(&ev))
	assert.Equal(t, "Reply from 8.8.8.8", ev.Line)

	require.NoError(t, d.Handle(ctx, action(t, ActionKillCmd, KillCmd{ID: "c1"})))
	assert.Equal(t, []string{"c1"}, cmds.killed)
}

func TestHandle_RejectedCommand(t *testing.T) {
	d, in := setup(t, WithCommands(&fakeCommands{started: map[string]string{}}))
	err := d.Handle(context.Background(), action(t, ActionRunCmd, RunCmd{Cmd: "bad", ID: "c2"}))
	assert.ErrorIs(t, err, console.ErrNotAllowed)
	assert.Equal(t, "cmd_error", next(t, in).Type)
}

func TestHandle_CheckUpdate(t *testing.T) {
	d, in := setup(t, WithVersions("1.2.0", "1.10.0"))
	require.NoError(t, d.Handle(context.Background(), Message{Action: ActionCheckUpdate}))
	reply := next(t, in)
	assert.Equal(t, TypeUpdateAvailable, reply.Type)

	same, in2 := setup(t, WithVersions("1.2.0", "1.2.0"))
	require.NoError(t, same.Handle(context.Background(), Message{Action: ActionCheckUpdate}))
	select {
	case m := <-in2:
		t.Fatalf("unexpected reply %s", m.Name())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandle_GoogleAuth(t *testing.T) {
	d, in := setup(t, WithAuthURL(func() (string, error) { return "https://accounts.example/auth", nil }))
	require.NoError(t, d.Handle(context.Background(), Message{Action: ActionGoogleAuth}))
	reply := next(t, in)
	assert.Equal(t, TypeGoogleAuthStarted, reply.Type)
	var ga GoogleAuth
	require.NoError(t, reply.Decode(&ga))
	assert.Equal(t, "https://accounts.example/auth", ga.URL)

	off, in2 := setup(t)
	require.NoError(t, off.Handle(context.Background(), Message{Action: ActionGoogleAuth}))
	assert.Equal(t, TypeGoogleAuthResult, next(t, in2).Type)
}

func TestHandle_UnknownAction(t *testing.T) {
	d, _ := setup(t)
	assert.ErrorIs(t, d.Handle(context.Background(), Message{Action: "format_disk"}), ErrUnknownAction)
}

func TestRun_AnnouncesAndStops(t *testing.T) {
	ui, host := NewPipe(4)
	defer ui.Close()
	ctx, cancel := context.WithCancel(context.Background())
	in, err := ui.Receive(ctx)
	require.NoError(t, err)

	d := NewDispatcher(host, WithLogger(log.Nop()), WithVersions("1.0.0", "1.0.1"))
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	assert.Equal(t, TypeHostReady, next(t, in).Type)
	require.NoError(t, ui.Send(ctx, Message{Action: ActionCheckUpdate}))
	assert.Equal(t, TypeUpdateAvailable, next(t, in).Type)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestNewerVersion(t *testing.T) {
	assert.True(t, NewerVersion("1.10.0", "1.9.3"))
	assert.True(t, NewerVersion("v2.0", "1.99.99"))
	assert.False(t, NewerVersion("1.0.0", "1.0"))
	assert.False(t, NewerVersion("1.0.0-beta", "1.0.0"))
	assert.False(t, NewerVersion("", "1.0.0"))
}

func TestSaveNotifier_SendsSaveDB(t *testing.T) {
	ui, host := NewPipe(1)
	defer ui.Close()
	defer host.Close()

	hook := SaveNotifier(ui, nil)
	hook(context.Background(), "add_client", core.GlobalState{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msgs, err := host.Receive(ctx)
	require.NoError(t, err)

	m := <-msgs
	assert.Equal(t, ActionSaveDB, m.Action)
	var in SaveDB
	require.NoError(t, m.Decode(&in))
	assert.Equal(t, "success", in.Status)
	assert.Equal(t, "add_client", in.Message)
}

func TestSaveNotifier_IgnoresClosedTransport(t *testing.T) {
	ui, host := NewPipe(1)
	require.NoError(t, host.Close())

	assert.NotPanics(t, func() {
		SaveNotifier(ui, nil)(context.Background(), "rollover", core.GlobalState{})
	})
}
