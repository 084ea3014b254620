package models

import "time"

type Event struct {
	Event  string    `json:"event"`
	Server string    `json:"server"`
	Action string    `json:"action,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}
