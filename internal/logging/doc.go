// Package logging provides steward's file logging with rotation.
//
// Every command logs JSON to ~/.steward/logs/ ($STEWARD_HOME/logs when
// set): steward.log for serve and query commands, ingest.log for
// pipeline runs. Commands mirror entries to stderr unless --quiet is
// set; serve never touches stderr at all. The Viewer behind
// `steward logs` tails, follows, and filters those files.
package logging
