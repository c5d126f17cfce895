package log

import (
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	STDOUT     bool   `json:"stdout"`
	File       string `json:"file"`        // log file path, empty means no log file
	Level      int8   `json:"level"`       // debug -1 | info 0 (default) | warn 1 | error 2
	MaxAge     int    `json:"max_age"`     // days to keep rotated files, 0 keeps all
	MaxSize    int    `json:"max_size"`    // megabytes per file
	MaxBackups int    `json:"max_backups"` // rotated files to keep
	Compress   bool   `json:"compress"`
	JsonFormat bool   `json:"json_format"`
}

// Logger and Sugar start as no-op loggers so packages can log before Init.
var (
	Logger = zap.NewNop()
	Sugar  = Logger.Sugar()
)

// Link returns a field tagging a log entry with a modem link id.
func Link(id int) zap.Field {
	return zap.Int("link", id)
}

// SN returns a field tagging a log entry with a control loop serial number.
func SN(sn uint64) zap.Field {
	return zap.Uint64("sn", sn)
}

func Init(config Config) error {

	var wss []zapcore.WriteSyncer
	if len(config.File) > 0 {
		hook := lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSize, // megabytes
			MaxAge:     config.MaxAge,
			MaxBackups: config.MaxBackups,
			LocalTime:  false,
			Compress:   config.Compress,
		}
		wss = append(wss, zapcore.AddSync(&hook))
	}

	if config.STDOUT {
		wss = append(wss, zapcore.AddSync(os.Stdout))
	}

	if len(wss) == 0 {
		return errors.New("write syncer needed")
	}

	cfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      "C",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	if config.JsonFormat {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	switch zapcore.Level(config.Level) {
	case zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel:
	default:
		config.Level = int8(zapcore.InfoLevel)
	}

	Logger = zap.New(zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(wss...), zapcore.Level(config.Level)), zap.AddCaller())
	Sugar = Logger.Sugar()

	return nil
}

// InitDevelop installs zap's development logger, used by the driver when no
// option file is present.
func InitDevelop() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	Logger = l
	Sugar = l.Sugar()
}

func Sync() {
	_ = Logger.Sync()
}
