package middleware

import (
	"bytes"
	"io"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// EnsureUTF8Body 把非 UTF-8 的请求体按 GBK 转换
// Windows 中文环境下 curl 发送的消息文本常为 GBK，直接转发给上游会变成乱码
func EnsureUTF8Body() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.ContentLength == 0 {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		_ = c.Request.Body.Close()
		if err != nil {
			c.Request.Body = io.NopCloser(bytes.NewReader(nil))
			c.Next()
			return
		}

		body = normalizeUTF8(body)
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Request.ContentLength = int64(len(body))
		c.Next()
	}
}

// normalizeUTF8 转换失败或结果仍非法时返回原始数据
func normalizeUTF8(body []byte) []byte {
	if utf8.Valid(body) {
		return body
	}
	converted, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), simplifiedchinese.GBK.NewDecoder()))
	if err != nil || !utf8.Valid(converted) {
		return body
	}
	return converted
}
