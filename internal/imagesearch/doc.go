// Package imagesearch defines the types and small interfaces shared by the
// locator, fetcher, pipeline, and storage packages of the imgscout tool.
package imagesearch
