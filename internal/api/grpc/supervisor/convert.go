package supervisor

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/bundle-launcher/internal/domain/bundle"
	"github.com/oshokin/bundle-launcher/internal/events"
	domain "github.com/oshokin/bundle-launcher/internal/supervisor"
)

// Struct field names shared by the server and the client.
const (
	FieldPID        = "pid"
	FieldInstance   = "instance"
	FieldVersion    = "version"
	FieldUser       = "user"
	FieldWorkDir    = "work_dir"
	FieldStartedAt  = "started_at"
	FieldExecutable = "executable"
	FieldAlive      = "alive"
	FieldPath       = "path"
	FieldArgs       = "args"
	FieldEnv        = "env"
	FieldNativesDir = "natives_dir"
	FieldProcesses  = "processes"
	FieldKind       = "kind"
	FieldStream     = "stream"
	FieldLine       = "line"
	FieldExitCode   = "exit_code"
	FieldTime       = "time"
)

var errMalformedField = errors.New("malformed field")

// SpecToStruct encodes a spawn spec.
func SpecToStruct(spec *domain.Spec) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldInstance:   spec.Instance,
		FieldVersion:    spec.Version,
		FieldUser:       spec.User,
		FieldPath:       spec.Path,
		FieldArgs:       toList(spec.Args),
		FieldWorkDir:    spec.Dir,
		FieldEnv:        toList(spec.Env),
		FieldNativesDir: spec.NativesDir,
	})
}

// SpecFromStruct decodes a spawn spec.
func SpecFromStruct(message *structpb.Struct) (*domain.Spec, error) {
	fields := message.GetFields()

	args, err := fromList(fields[FieldArgs])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FieldArgs, err)
	}

	env, err := fromList(fields[FieldEnv])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", FieldEnv, err)
	}

	return &domain.Spec{
		Instance:   fields[FieldInstance].GetStringValue(),
		Version:    fields[FieldVersion].GetStringValue(),
		User:       fields[FieldUser].GetStringValue(),
		Path:       fields[FieldPath].GetStringValue(),
		Args:       args,
		Dir:        fields[FieldWorkDir].GetStringValue(),
		Env:        env,
		NativesDir: fields[FieldNativesDir].GetStringValue(),
	}, nil
}

// InfoToStruct encodes a process record with its operating system view.
func InfoToStruct(info *domain.ProcessInfo) (*structpb.Struct, error) {
	values := recordValues(&info.ProcessRecord)
	values[FieldExecutable] = info.Executable
	values[FieldAlive] = info.Alive

	return structpb.NewStruct(values)
}

// InfoFromStruct decodes what InfoToStruct produced.
func InfoFromStruct(message *structpb.Struct) (*domain.ProcessInfo, error) {
	fields := message.GetFields()

	info := &domain.ProcessInfo{
		ProcessRecord: bundle.ProcessRecord{
			PID:      int(fields[FieldPID].GetNumberValue()),
			Instance: fields[FieldInstance].GetStringValue(),
			Version:  fields[FieldVersion].GetStringValue(),
			User:     fields[FieldUser].GetStringValue(),
			WorkDir:  fields[FieldWorkDir].GetStringValue(),
		},
		Executable: fields[FieldExecutable].GetStringValue(),
		Alive:      fields[FieldAlive].GetBoolValue(),
	}

	if raw := fields[FieldStartedAt].GetStringValue(); raw != "" {
		startedAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", FieldStartedAt, err)
		}

		info.StartedAt = startedAt
	}

	return info, nil
}

// EventToStruct encodes a console line or process exit event.
func EventToStruct(event *events.Event) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		FieldKind:     string(event.Kind),
		FieldPID:      event.PID,
		FieldInstance: event.Instance,
		FieldStream:   string(event.Stream),
		FieldLine:     event.Line,
		FieldExitCode: event.ExitCode,
		FieldTime:     event.Time.Format(time.RFC3339Nano),
	})
}

// EventFromStruct decodes what EventToStruct produced.
func EventFromStruct(message *structpb.Struct) events.Event {
	fields := message.GetFields()

	event := events.Event{
		Kind:     events.Kind(fields[FieldKind].GetStringValue()),
		PID:      int(fields[FieldPID].GetNumberValue()),
		Instance: fields[FieldInstance].GetStringValue(),
		Stream:   events.Stream(fields[FieldStream].GetStringValue()),
		Line:     fields[FieldLine].GetStringValue(),
		ExitCode: int(fields[FieldExitCode].GetNumberValue()),
	}

	if at, err := time.Parse(time.RFC3339Nano, fields[FieldTime].GetStringValue()); err == nil {
		event.Time = at
	}

	return event
}

func recordValues(record *bundle.ProcessRecord) map[string]any {
	values := map[string]any{
		FieldPID:      record.PID,
		FieldInstance: record.Instance,
		FieldVersion:  record.Version,
		FieldUser:     record.User,
		FieldWorkDir:  record.WorkDir,
	}

	if !record.StartedAt.IsZero() {
		values[FieldStartedAt] = record.StartedAt.Format(time.RFC3339Nano)
	}

	return values
}

func toList(values []string) []any {
	list := make([]any, 0, len(values))
	for _, value := range values {
		list = append(list, value)
	}

	return list
}

func fromList(value *structpb.Value) ([]string, error) {
	if value == nil {
		return nil, nil
	}

	list := value.GetListValue()
	if list == nil {
		return nil, errMalformedField
	}

	result := make([]string, 0, len(list.GetValues()))

	for _, item := range list.GetValues() {
		str, ok := item.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return nil, errMalformedField
		}

		result = append(result, str.StringValue)
	}

	return result, nil
}
