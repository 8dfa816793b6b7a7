package logger

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LoggerService owns the process logger. Output goes to stdout and to a
// size-rotated file under folder_path.
type LoggerService struct {
	Config map[string]interface{}
	Logger *logrus.Logger

	mu            sync.Mutex
	file          *lumberjack.Logger
	folderPath    string
	maxFileMB     int
	maxBackups    int
	retentionDays int
	compress      bool
	stdout        io.Writer
}

func NewLoggerService(config map[string]interface{}) *LoggerService {
	folder, _ := config["folder_path"].(string)
	if folder == "" {
		folder = "./logs"
	}
	maxMB := intValue(config["max_file_mb"])
	if maxMB == 0 {
		maxMB = 50
	}
	compress := true
	if v, ok := config["compress"].(bool); ok {
		compress = v
	}

	l := logrus.New()
	l.SetLevel(parseLevel(config["level"]))
	if format, _ := config["format"].(string); strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &LoggerService{
		Config:        config,
		Logger:        l,
		folderPath:    folder,
		maxFileMB:     maxMB,
		maxBackups:    intValue(config["max_backups"]),
		retentionDays: intValue(config["retention_days"]),
		compress:      compress,
		stdout:        os.Stdout,
	}
}

func (l *LoggerService) Name() string {
	return "Logger"
}

func (l *LoggerService) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.folderPath, 0o755); err != nil {
		return err
	}
	l.file = &lumberjack.Logger{
		Filename:   filepath.Join(l.folderPath, "app.log"),
		MaxSize:    l.maxFileMB,
		MaxBackups: l.maxBackups,
		MaxAge:     l.retentionDays,
		Compress:   l.compress,
	}
	out := io.MultiWriter(l.stdout, l.file)
	l.Logger.SetOutput(out)
	// stdlib log users (net/http, cron) land in the same file
	log.SetOutput(l.Logger.WriterLevel(logrus.InfoLevel))
	log.SetFlags(0)

	l.Logger.WithField("file", l.file.Filename).Info("[LoggerService] Started")
	return nil
}

func (l *LoggerService) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.Logger.Info("[LoggerService] Stopping")
	l.Logger.SetOutput(l.stdout)
	log.SetOutput(os.Stderr)
	err := l.file.Close()
	l.file = nil
	return err
}

// Rotate forces the current log file to roll over.
func (l *LoggerService) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Rotate()
}

func (l *LoggerService) LogAudit(msg string) {
	l.Logger.WithField("audit", true).Info(msg)
}

var GlobalLogger *LoggerService

func SetGlobalLogger(l *LoggerService) {
	GlobalLogger = l
}

// Component returns an entry tagged with the component name. Before the
// logger service is registered it falls back to the logrus standard logger.
func Component(name string) *logrus.Entry {
	if GlobalLogger != nil && GlobalLogger.Logger != nil {
		return GlobalLogger.Logger.WithField("component", name)
	}
	return logrus.StandardLogger().WithField("component", name)
}

// Audit writes an audit line through the global logger when it is set.
func Audit(msg string) {
	if GlobalLogger != nil {
		GlobalLogger.LogAudit(msg)
		return
	}
	logrus.WithField("audit", true).Info(msg)
}

func parseLevel(v interface{}) logrus.Level {
	s, _ := v.(string)
	if s == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func intValue(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
