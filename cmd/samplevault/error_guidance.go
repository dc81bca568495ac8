package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"samplevault/internal/service"
)

// batchFailedError reports that at least one batch item failed. The per-item
// errors have already been printed.
type batchFailedError struct {
	op     string
	failed int
	total  int
}

func (e *batchFailedError) Error() string {
	return fmt.Sprintf("%s: %d of %d items failed", e.op, e.failed, e.total)
}

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		user := service.ToUserError(err)
		line := fmt.Sprintf("error %d: %s", service.CodeOf(err), user.Message)
		if len(user.Path) > 0 {
			line = fmt.Sprintf("error %d [%s]: %s", service.CodeOf(err), strings.Join(user.Path, "."), user.Message)
		}
		lines := []string{line}
		switch service.KindOf(err) {
		case service.KindChecksumDuplicate:
			lines = append(lines, "hint: list the target's attachments with: samplevault list <type> <id>")
		case service.KindBlobUnprocessable:
			lines = append(lines, "hint: re-upload the file with: samplevault upload <path>")
		case service.KindProtectedOrigin:
			lines = append(lines, "hint: attachments produced by workflow runs need --privileged to be changed.")
		case service.KindInvalidBasename:
			lines = append(lines, "hint: use only letters, digits, '_' and '-' in the basename.")
		case service.KindIncorrectFileTypes, service.KindIncorrectFastqFileTypes:
			lines = append(lines, "hint: select fastq files of one read type and one compression, with mates together.")
		case service.KindInternal:
			lines = append(lines, "hint: rerun with --log-level debug for details.")
		}
		return uniqueLines(lines)
	}

	lines := []string{err.Error()}

	var batchErr *batchFailedError
	if errors.As(err, &batchErr) {
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: operation timed out; check database, blob store and redis reachability.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: check database_url, blobs.s3.endpoint and locking.redis_addr.",
			"hint: show the active values with: samplevault config get <key>",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
