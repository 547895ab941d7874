package jobs

import (
	"errors"
	"fmt"
	"time"

	"reelpost/internal/distribution"
)

// Job is one pending publish of one video to one platform.
type Job struct {
	ID          string                `json:"id"`
	OwnerChatID int64                 `json:"-"`
	Platform    distribution.Platform `json:"platform"`
	VideoPath   string                `json:"videoPath"`
	Caption     string                `json:"caption"`
	ScheduledAt time.Time             `json:"scheduledDate"`
}

type Key struct {
	Owner int64
	ID    string
}

func (j Job) Key() Key {
	return Key{Owner: j.OwnerChatID, ID: j.ID}
}

// Due reports whether the job should run at now. leeway pulls the due
// boundary forward so a pass that fires a little early still picks it up.
func (j Job) Due(now time.Time, leeway time.Duration) bool {
	return !j.ScheduledAt.After(now.Add(leeway))
}

func (j Job) validate() error {
	switch {
	case j.ID == "":
		return errors.New("job id is empty")
	case j.VideoPath == "":
		return errors.New("job video path is empty")
	case j.ScheduledAt.IsZero():
		return errors.New("job scheduled time is zero")
	}
	if _, err := distribution.ParsePlatform(string(j.Platform)); err != nil {
		return err
	}
	return nil
}

// Plan builds the jobs for one scheduling request. A single platform gets
// id post_<ms>; a cross-post gets one job per platform with the platform
// appended, sharing video, caption and time.
func Plan(owner int64, platforms []distribution.Platform, videoPath, caption string, at, created time.Time) []Job {
	base := fmt.Sprintf("post_%d", created.UnixMilli())

	jobs := make([]Job, 0, len(platforms))
	for _, p := range platforms {
		id := base
		if len(platforms) > 1 {
			id = base + "_" + string(p)
		}
		jobs = append(jobs, Job{
			ID:          id,
			OwnerChatID: owner,
			Platform:    p,
			VideoPath:   videoPath,
			Caption:     caption,
			ScheduledAt: at,
		})
	}
	return jobs
}
