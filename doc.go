// Package motionheic converts Apple Live Photos (HEIC still + paired MOV/MP4
// video) into Android Motion Photo JPEGs: an Ultra HDR (JPEG/R) gain-map JPEG
// built from the HEIC's Apple HDR gain map, with the video appended and
// Google/Xiaomi motion-photo XMP tags written via exiftool.
//
// The container assembly (MPF + XMP + ISO 21496-1 gain map metadata) is a
// pure-Go implementation using the standard image/jpeg package; HEIC decode
// and audio transcode are delegated to libheif and ffmpeg respectively.
package motionheic
