// Copyright 2015 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package log

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
)

// FormatWithContextTags formats the string and prepends the context
// tags.
//
// Redaction markers are *not* inserted. The resulting
// string is generally unsafe for reporting.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	formatTags(ctx, &buf)
	buf.WriteString(redact.Sprintf(format, args...).StripMarkers())
	return buf.String()
}

func formatTags(ctx context.Context, buf *strings.Builder) {
	tags := logtags.FromContext(ctx)
	if tags == nil || len(tags.Get()) == 0 {
		return
	}
	buf.WriteByte('[')
	buf.WriteString(tags.String())
	buf.WriteString("] ")
}

// addStructured formats a log entry and writes it to the current output.
func addStructured(ctx context.Context, sev Severity, format string, args []interface{}) {
	var buf strings.Builder
	buf.WriteString(sev.String())
	buf.WriteString(time.Now().UTC().Format("060102 15:04:05.000000"))
	buf.WriteByte(' ')
	buf.WriteString(FormatWithContextTags(ctx, format, args...))
	if !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}

	logging.mu.Lock()
	defer logging.mu.Unlock()
	_, _ = logging.out.Write([]byte(buf.String()))
}
