// Package ankisqlite implements the note and media store contracts over a
// local Anki collection: the collection.anki2 sqlite database for note
// fields, and the collection.media directory for generated images and audio.
// It targets the modern collection schema where notetypes and their fields
// live in the notetypes and fields tables.
package ankisqlite
