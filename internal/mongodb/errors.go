package mongodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/wwwzy/MongoAgent/internal/errx"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	codeNamespaceNotFound     = 26
	codeIndexNotFound         = 27
	codeDocumentValidation    = 121
	codeIndexOptionsConflict  = 85
	codeIndexKeySpecsConflict = 86
)

// classify 将驱动错误转换为 errx 分类，消息可直接展示给用户，原始错误保留在 Err 中。
func classify(op, collection string, err error) error {
	if err == nil {
		return nil
	}

	target := "the database"
	if collection != "" {
		target = fmt.Sprintf("collection %q", collection)
	}

	switch {
	case IsConnectionError(err):
		return errx.New(errx.KindConnection, err, "could not reach the database")
	case errors.Is(err, mongo.ErrNoDocuments):
		return errx.New(errx.KindNotFound, err, fmt.Sprintf("no matching document in %s", target))
	case mongo.IsDuplicateKeyError(err):
		return errx.New(errx.KindValidation, err, "a document with the same unique key already exists")
	}

	if code, msg, ok := serverError(err); ok {
		switch code {
		case codeNamespaceNotFound:
			return errx.New(errx.KindNotFound, err, fmt.Sprintf("%s does not exist", target))
		case codeIndexNotFound:
			return errx.New(errx.KindNotFound, err, fmt.Sprintf("the index was not found on %s", target))
		case codeDocumentValidation:
			return errx.New(errx.KindValidation, err, fmt.Sprintf("the document failed validation rules of %s", target))
		case codeIndexOptionsConflict, codeIndexKeySpecsConflict:
			return errx.New(errx.KindValidation, err, "an index with conflicting options already exists")
		}
		if msg != "" {
			return errx.New(errx.KindDatabaseOperation, err, fmt.Sprintf("%s on %s failed: %s", op, target, msg))
		}
	}

	return errx.New(errx.KindDatabaseOperation, err, fmt.Sprintf("%s on %s failed", op, target))
}

// IsConnectionError 判断是否为可重试的连接类错误（网络、超时、服务器选择失败）。
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded)
}

func serverError(err error) (int, string, bool) {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return int(cmdErr.Code), cmdErr.Message, true
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		if len(writeErr.WriteErrors) > 0 {
			we := writeErr.WriteErrors[0]
			return we.Code, we.Message, true
		}
		if writeErr.WriteConcernError != nil {
			return writeErr.WriteConcernError.Code, writeErr.WriteConcernError.Message, true
		}
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return 0, "", true
	}
	return 0, "", false
}
