package utils

import "github.com/google/uuid"

// GenID returns a new message id.
func GenID() string {
	return "msg-" + uuid.NewString()
}

// GenTopicID returns a new topic id.
func GenTopicID() string {
	return "topic-" + uuid.NewString()
}
