// Package process runs capture subprocesses.
//
// A Process starts a command whose stdout carries data for the caller
// (raw video frames) and whose stderr is treated as log output:
//   - stdout is handed to the caller as an io.Reader
//   - stderr lines are logged at the level a pluggable LogParser extracts
//   - Stop sends SIGINT and force kills after a grace period
//
// Example:
//
//	p, err := process.Start(args, logger,
//	    process.WithOutputLogger(logging.GetLogger("ffmpeg"), ffmpeg.ParseLogLevel))
//	if err != nil {
//	    return err
//	}
//	defer p.Stop()
//	io.ReadFull(p.Stdout(), frame)
package process
