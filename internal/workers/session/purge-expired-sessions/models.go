package purgeexpiredsessions

import "time"

type Input struct {
	UserID string `json:"userId"`
}

type Output struct {
	Deleted  int64     `json:"deleted"`
	PurgedAt time.Time `json:"purgedAt"`
}
