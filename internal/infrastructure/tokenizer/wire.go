package tokenizer

import "github.com/google/wire"

// ProviderSet 使用进程级共享的估算器
var ProviderSet = wire.NewSet(GetEstimator)
