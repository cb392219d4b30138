// Package dashboard serves the tracker's single-page map dashboard.
//
// The page is embedded into the binary with go:embed. It polls
// /api/devices for each device's recent trail and listens on /ws for
// newly stored points. Setting dashboard.dir serves the same files from
// disk instead, so the page can be edited without a rebuild.
package dashboard
