package verscache

import (
	"fmt"

	"github.com/charmbracelet/log"
)

// adapter lets gorm's logger write through the bridge's own structured
// logger instead of stdlib log, mirroring the register-extensions storage
// package's gormLogAdapter.
type adapter struct {
	logger *log.Logger
}

func (a adapter) Printf(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
