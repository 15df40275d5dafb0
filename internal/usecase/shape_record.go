package usecase

import "github.com/V4T54L/telemetry-sink/internal/domain"

// ShapeRecord builds the storage record for one event of env. It never
// fails: a missing channel or pdata leaves the field absent. Callers must
// have validated that ev has a context.
func ShapeRecord(env *domain.Envelope, ev domain.Event) domain.StorageRecord {
	record := domain.StorageRecord{
		APIID:  env.ID,
		Ver:    env.Ver,
		Params: env.Params,
		ETS:    env.ETS,
		Events: ev,
		MID:    env.MID,
		SyncTS: env.SyncTS,
	}
	if ev.Context != nil {
		record.Channel = ev.Context.Channel
		if ev.Context.PData != nil {
			record.PID = ev.Context.PData.PID
		}
	}
	return record
}
