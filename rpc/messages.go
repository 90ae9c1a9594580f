package rpc

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// WorkerInfo identifies a worker registering with the master.
type WorkerInfo struct {
	UUID string
	Addr string
}

func (w WorkerInfo) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"uuid": w.UUID,
		"addr": w.Addr,
	})
}

func WorkerInfoFromStruct(s *structpb.Struct) WorkerInfo {
	m := s.AsMap()
	return WorkerInfo{UUID: str(m, "uuid"), Addr: str(m, "addr")}
}

// Registration is the master's answer to WorkerRegister.
type Registration struct {
	ID int
}

func (r Registration) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"id": r.ID})
}

func RegistrationFromStruct(s *structpb.Struct) Registration {
	return Registration{ID: num(s.AsMap(), "id")}
}

// Assignment is the master's answer to FetchTask. Exactly one of Done, Wait
// or a task (TaskID with Splits) is meaningful: Done means the job has no
// more work for anybody, Wait means tasks are still running elsewhere and
// the worker should ask again later.
type Assignment struct {
	TaskID int
	Splits []map[string]interface{}
	Wait   bool
	Done   bool
}

func (a Assignment) ToStruct() (*structpb.Struct, error) {
	splits := make([]interface{}, 0, len(a.Splits))
	for _, s := range a.Splits {
		splits = append(splits, s)
	}
	return structpb.NewStruct(map[string]interface{}{
		"task_id": a.TaskID,
		"splits":  splits,
		"wait":    a.Wait,
		"done":    a.Done,
	})
}

func AssignmentFromStruct(s *structpb.Struct) (Assignment, error) {
	m := s.AsMap()
	a := Assignment{
		TaskID: num(m, "task_id"),
		Wait:   flag(m, "wait"),
		Done:   flag(m, "done"),
	}
	raw, _ := m["splits"].([]interface{})
	for i, v := range raw {
		sm, ok := v.(map[string]interface{})
		if !ok {
			return a, fmt.Errorf("split %d of task %d is %T, not an object", i, a.TaskID, v)
		}
		a.Splits = append(a.Splits, sm)
	}
	return a, nil
}

// TaskReport tells the master how a task ended. Err is empty on success.
type TaskReport struct {
	TaskID   int
	WorkerID string
	Records  int64
	Err      string
}

func (r TaskReport) ToStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"task_id":   r.TaskID,
		"worker_id": r.WorkerID,
		"records":   r.Records,
		"err":       r.Err,
	})
}

func TaskReportFromStruct(s *structpb.Struct) TaskReport {
	m := s.AsMap()
	return TaskReport{
		TaskID:   num(m, "task_id"),
		WorkerID: str(m, "worker_id"),
		Records:  int64(number(m, "records")),
		Err:      str(m, "err"),
	}
}

// Ack is an empty acknowledgement.
func Ack() *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}
}

func str(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func number(m map[string]interface{}, key string) float64 {
	f, _ := m[key].(float64)
	return f
}

func num(m map[string]interface{}, key string) int {
	return int(number(m, key))
}

func flag(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}
