package cache

import "fmt"

// Key semantics:
// - projectRoomKey:  project room members (ZSet<userId, expireAtUnix>, score=expireAt)
// - projectNamesKey: userId -> username map for the project room (Hash)
// - fileRoomKey:     file room members (ZSet, same scheme)
// - fileNamesKey:    userId -> username map for the file room (Hash)
// - cursorKey:       one user's cursor JSON in a file (String, TTL)
// - selectionKey:    one user's selection JSON in a file (String, TTL)
//
// The {…} hash tags keep each room's keys on one cluster slot.

const (
	keyProjectRoomFmt  = "presence:project:{%s}"
	keyProjectNamesFmt = "presence:project:names:{%s}"
	keyFileRoomFmt     = "presence:file:{%s/%s}"
	keyFileNamesFmt    = "presence:file:names:{%s/%s}"
	keyCursorFmt       = "presence:cursor:{%s/%s}:%d"
	keySelectionFmt    = "presence:selection:{%s/%s}:%d"
)

func projectRoomKey(projectID string) string  { return fmt.Sprintf(keyProjectRoomFmt, projectID) }
func projectNamesKey(projectID string) string { return fmt.Sprintf(keyProjectNamesFmt, projectID) }

func fileRoomKey(projectID, fileID string) string {
	return fmt.Sprintf(keyFileRoomFmt, projectID, fileID)
}

func fileNamesKey(projectID, fileID string) string {
	return fmt.Sprintf(keyFileNamesFmt, projectID, fileID)
}

func cursorKey(projectID, fileID string, userID uint64) string {
	return fmt.Sprintf(keyCursorFmt, projectID, fileID, userID)
}

func selectionKey(projectID, fileID string, userID uint64) string {
	return fmt.Sprintf(keySelectionFmt, projectID, fileID, userID)
}
