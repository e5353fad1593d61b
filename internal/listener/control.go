package listener

import (
	"fmt"
	"time"

	"github.com/smazurov/framelink/internal/control"
)

// controlWriteTimeout bounds a single control line write.
const controlWriteTimeout = 2 * time.Second

// SendControl writes one newline-terminated command to the connected producer.
func (l *Listener) SendControl(cmd control.Command) error {
	return l.SendControlLine(cmd.String())
}

// SendControlLine writes a raw control line. The producer ignores lines it
// cannot parse, so malformed input is not rejected here.
func (l *Listener) SendControlLine(line string) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNoProducer
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(controlWriteTimeout))
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("send control %q: %w", line, err)
	}
	l.logger.Debug("Sent control", "line", line)
	return nil
}

// Reset sends the default value of every parameter.
func (l *Listener) Reset() error {
	for _, cmd := range control.DefaultParameters().Commands() {
		if err := l.SendControl(cmd); err != nil {
			return err
		}
	}
	return nil
}
