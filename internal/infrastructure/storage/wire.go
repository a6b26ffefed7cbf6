package storage

import (
	"database/sql"

	"github.com/google/wire"

	"github.com/streamchat/backend/internal/infrastructure/config"
)

// ProviderSet Storage 基础设施层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideDB,
	NewConversationRepository,
)

// ProvideDB 按配置打开数据库，cleanup 关闭连接
func ProvideDB(cfg *config.Config) (*sql.DB, func(), error) {
	db, err := OpenDB(cfg.DBPath())
	if err != nil {
		return nil, nil, err
	}
	return db, func() { _ = db.Close() }, nil
}
