package config

import (
	"fmt"
)

// Collection names shared with the rest of the portal.
const (
	CollectionExams    = "exams"
	CollectionResults  = "examResults"
	CollectionProgress = "examProgress"
)

type DocKeyStruct struct{}

func NewDocKeyStruct() *DocKeyStruct {
	return &DocKeyStruct{}
}

// ExamID returns the document id of an exam definition.
func (k *DocKeyStruct) ExamID(examID string) string {
	return examID
}

// ResultID returns the document id of a student's result for an exam.
func (k *DocKeyStruct) ResultID(examID, studentID string) string {
	return fmt.Sprintf("%s_%s", examID, studentID)
}

// ProgressID returns the document id of a student's in-flight attempt.
// The order is student first, unlike ResultID.
func (k *DocKeyStruct) ProgressID(studentID, examID string) string {
	return fmt.Sprintf("%s_%s", studentID, examID)
}

var DocKey = NewDocKeyStruct()

type CacheKeyStruct struct{}

// StudentSessionKey returns the cache key for a user's single-device login session.
func (r *CacheKeyStruct) StudentSessionKey(userID string) string {
	return fmt.Sprintf("login:%s", userID)
}

// DocumentKey returns the Redis key holding a document body.
func (r *CacheKeyStruct) DocumentKey(collection, id string) string {
	return fmt.Sprintf("doc:%s:%s", collection, id)
}

// CollectionIndexKey returns the Redis set listing a collection's document ids.
func (r *CacheKeyStruct) CollectionIndexKey(collection string) string {
	return fmt.Sprintf("docs:%s", collection)
}

var CacheKey = &CacheKeyStruct{}
