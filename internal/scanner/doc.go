// Package scanner reconciles the music, image, and video directories with the
// track store.
//
// Scan lists supported audio files. FullScanAndSync registers unknown files,
// counts tracks whose audio disappeared, and runs SyncItem for every stored
// track so stage statuses and paths agree with what is on disk. SyncItem only
// writes when the store disagrees with the observed files.
package scanner
