package mineru

import (
	"context"

	"github.com/MimeLyc/mineru-batch/internal/jobs"
)

// BatchSource polls every document of one upload batch.
func (c *Client) BatchSource(batchID string) jobs.StatusSource {
	return jobs.StatusSourceFunc(func(ctx context.Context) ([]jobs.Status, error) {
		return c.FetchStatus(ctx, batchID)
	})
}

// TaskSource polls a single URL task. The task's data id is filled in when
// the service omits it so the poller can match the entry.
func (c *Client) TaskSource(taskID, dataID string) jobs.StatusSource {
	return jobs.StatusSourceFunc(func(ctx context.Context) ([]jobs.Status, error) {
		st, err := c.FetchTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if st.DataID == "" {
			st.DataID = dataID
		}
		return []jobs.Status{st}, nil
	})
}
