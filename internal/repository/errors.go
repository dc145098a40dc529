package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"github.com/hitoshi/newsletter/internal/model"
)

// uniqueViolation は一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// classify はドライバのエラーを *model.StoreError に分類する。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	return &model.StoreError{Op: op, Kind: kindOf(err), Err: err}
}

func kindOf(err error) model.StoreErrorKind {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == uniqueViolation:
			return model.StoreDuplicate
		// 08: 接続例外, 53: リソース不足, 57: 管理者による介入
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "53", pqErr.Code.Class() == "57":
			return model.StoreUnavailable
		// シリアライズ失敗とデッドロックは再試行で解消しうる
		case pqErr.Code == "40001", pqErr.Code == "40P01":
			return model.StoreUnavailable
		}
		return model.StoreUnexpected
	}

	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return model.StoreUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return model.StoreUnavailable
	}

	return model.StoreUnexpected
}
