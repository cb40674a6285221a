package stats

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ntlog "github.com/xtaci/ntsock/log"
)

// CSVLogger periodically appends a Snapshot of c to path as a CSV row,
// generalized directly from the teacher's std/snmp.go SnmpLogger (which
// does the same for kcp-go's package-global DefaultSnmp): path's filename
// component is itself a time.Format layout (e.g. "snmp-20060102.csv"), so
// log rotation falls out of the timestamp alone. Runs until ctx is
// cancelled.
func CSVLogger(ctx context.Context, path string, interval time.Duration, c *Counters, logger ntlog.Logger) {
	if path == "" || interval <= 0 {
		return
	}
	if logger == nil {
		logger = ntlog.NewNoop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			writeCSVRow(path, c, logger)
		}
	}
}

func writeCSVRow(path string, c *Counters, logger ntlog.Logger) {
	logdir, logfile := filepath.Split(path)
	f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logger.Warnf("stats: open csv log: %v", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if stat, serr := f.Stat(); serr == nil && stat.Size() == 0 {
		if werr := w.Write(append([]string{"Unix"}, Header()...)); werr != nil {
			logger.Warnf("stats: write csv header: %v", werr)
		}
	}
	snap := c.Snapshot()
	if werr := w.Write(append([]string{fmt.Sprint(time.Now().Unix())}, snap.ToSlice()...)); werr != nil {
		logger.Warnf("stats: write csv row: %v", werr)
	}
	w.Flush()
}
