package log

import log "github.com/cihub/seelog"

// InitLogger replaces the default seelog logger with the one described by the
// XML config at cfgfile. An empty path keeps the default console logger.
func InitLogger(cfgfile string) error {
	if cfgfile == "" {
		return nil
	}
	logger, err := log.LoggerFromConfigAsFile(cfgfile)
	if err != nil {
		return err
	}
	return log.ReplaceLogger(logger)
}

// Flush drains buffered log writers, called once before the process exits.
func Flush() {
	log.Flush()
}
