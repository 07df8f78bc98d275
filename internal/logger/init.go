package logger

import "log"

// InitLogger 初始化进程级日志器：带时间戳和调用位置
func InitLogger() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("Logger initialized")
}
