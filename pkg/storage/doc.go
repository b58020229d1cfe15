// Package storage writes downloaded illustrations to disk.
//
// Files are named "<id> <title>.<ext>" inside the illustrations directory,
// with characters that Windows rejects in file names replaced by spaces.
// Every write goes through a temporary file in the same directory followed by
// a rename, so a file at its final name is always complete.
//
//	manager, err := storage.NewManager("Illustrations")
//	if err != nil {
//	    return err
//	}
//	path := manager.IllustrationPath(101, "sunset", "png")
//	if !manager.Exists(path) {
//	    _, err = manager.Save(resp.Body, path)
//	}
package storage
