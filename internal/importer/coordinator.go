package importer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pensionhub/internal/aggregator"
	"pensionhub/internal/model"
	"pensionhub/internal/normalizer"
	"pensionhub/internal/parser"
	"pensionhub/internal/store"
)

// DefaultMaxConsecutiveErrors 连续行级存储失败达到该次数时视为存储不可用
const DefaultMaxConsecutiveErrors = 25

// 工作表处理状态
const (
	SheetImported = "imported"
	SheetSkipped  = "skipped"
	SheetAborted  = "aborted"
)

// Store 导入依赖的存储能力
type Store interface {
	WithTx(ctx context.Context, fn func(store.Tx) error) error
	CreateImportLog(ctx context.Context, batchID, filename string, fileSize int64, fileHash string, startedAt time.Time) error
	FinishImportLog(ctx context.Context, res *model.BatchResult, status string, completedAt time.Time) error
}

// StorageFailure 存储不可用，批次剩余行未处理；此前已提交的行保持不变
type StorageFailure struct {
	Sheet string
	Row   int
	Err   error
}

func (e *StorageFailure) Error() string {
	if e.Sheet == "" {
		return fmt.Sprintf("storage unavailable: %v", e.Err)
	}
	return fmt.Sprintf("storage unavailable at sheet %q row %d: %v", e.Sheet, e.Row, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }

// Config 导入参数
type Config struct {
	MaxConsecutiveErrors int
	ProgressEvery        int // 每处理多少行发送一次进度事件
}

// Coordinator 导入协调器：加载 -> 识别 -> 映射 -> 逐行规范化 -> 去重入库 + 汇总增量
type Coordinator struct {
	store      Store
	detector   *parser.Detector
	mapper     *parser.Mapper
	normalizer *normalizer.Normalizer
	aggregator *aggregator.Aggregator
	logger     logrus.FieldLogger
	cfg        Config
	now        func() time.Time
}

// NewCoordinator 创建导入协调器
func NewCoordinator(st Store, det *parser.Detector, mapper *parser.Mapper, norm *normalizer.Normalizer, logger logrus.FieldLogger, cfg Config) *Coordinator {
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 500
	}
	return &Coordinator{
		store:      st,
		detector:   det,
		mapper:     mapper,
		normalizer: norm,
		aggregator: aggregator.New(st, logger),
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ImportOptions 导入选项
type ImportOptions struct {
	FilePath string    // 与 Reader 二选一
	Reader   io.Reader // 上传的文件内容
	Filename string    // Reader 模式下的原始文件名（用于识别扩展名和日志）
	Profile  string    // 指定格式，空表示自动识别
	Sheet    string    // 只导入该工作表，空表示全部
	Mapping  *model.ManualMapping
}

func (o ImportOptions) name() string {
	if o.Filename != "" {
		return filepath.Base(o.Filename)
	}
	return filepath.Base(o.FilePath)
}

func (o ImportOptions) read() ([]byte, error) {
	if o.Reader != nil {
		return io.ReadAll(o.Reader)
	}
	if o.FilePath == "" {
		return nil, errors.New("no file given")
	}
	return os.ReadFile(o.FilePath)
}

// SheetPlan 单个工作表的识别与映射结果
type SheetPlan struct {
	Sheet     *model.RawSheet      `json:"-"`
	SheetName string               `json:"sheetName"`
	Detection *parser.Detection    `json:"detection,omitempty"`
	Mapping   *model.ColumnMapping `json:"mapping,omitempty"`
	Skipped   string               `json:"skipped,omitempty"`
}

// Plan 识别工作簿中每个工作表的格式并构建映射；没有任何可识别的工作表时返回 *parser.FormatError，
// 手工映射无效时返回 *parser.MappingError
func (c *Coordinator) Plan(wb *model.RawWorkbook, opts ImportOptions) ([]SheetPlan, error) {
	sheets := wb.Sheets
	if opts.Sheet != "" {
		s := wb.Sheet(opts.Sheet)
		if s == nil {
			return nil, &parser.FormatError{Sheet: opts.Sheet, Reason: "sheet not found"}
		}
		sheets = []*model.RawSheet{s}
	}

	var profile *model.FormatProfile
	if opts.Profile != "" && opts.Mapping == nil {
		if profile = c.detector.Profile(opts.Profile); profile == nil {
			return nil, &parser.FormatError{Reason: fmt.Sprintf("unknown profile %q", opts.Profile)}
		}
	}

	var (
		plans    []SheetPlan
		firstErr error
		usable   int
	)
	for _, sheet := range sheets {
		plan := SheetPlan{Sheet: sheet, SheetName: sheet.Name}

		switch {
		case opts.Mapping != nil:
			manual := *opts.Mapping
			if manual.Profile == "" {
				manual.Profile = opts.Profile
			}
			m, err := c.mapper.BuildExplicitMapping(sheet, manual, c.detector)
			if err != nil {
				return nil, err
			}
			plan.Mapping = m
		default:
			var (
				det *parser.Detection
				err error
			)
			if profile != nil {
				det, err = c.detector.DetectWith(sheet, profile)
			} else {
				det, err = c.detector.Detect(sheet)
			}
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				plan.Skipped = err.Error()
				plans = append(plans, plan)
				continue
			}
			plan.Detection = det
			plan.Mapping = c.mapper.BuildMapping(det)
		}
		usable++
		plans = append(plans, plan)
	}

	if usable == 0 {
		var fe *parser.FormatError
		if errors.As(firstErr, &fe) {
			return plans, fe
		}
		return plans, &parser.FormatError{Reason: "workbook has no sheets"}
	}
	return plans, nil
}

// Preview 只做识别和映射，不写入任何数据
func (c *Coordinator) Preview(opts ImportOptions) ([]SheetPlan, error) {
	data, err := opts.read()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", opts.name(), err)
	}
	wb, err := parser.LoadWorkbookBytes(opts.name(), data)
	if err != nil {
		return nil, err
	}
	return c.Plan(wb, opts)
}

// Import 同步导入一个文件。返回的 BatchResult 在部分失败时同样有效；
// 文件级错误（无法读取、无可识别表头、手工映射无效、存储不可用）同时以 error 返回
func (c *Coordinator) Import(ctx context.Context, opts ImportOptions) (*model.BatchResult, error) {
	return c.run(ctx, opts, func(ProgressEvent) {})
}

// ImportAsync 异步导入，返回进度通道；最后一个事件为 done 或 error
func (c *Coordinator) ImportAsync(ctx context.Context, opts ImportOptions) <-chan ProgressEvent {
	progressChan := make(chan ProgressEvent, 100)

	go func() {
		defer close(progressChan)
		res, err := c.run(ctx, opts, func(evt ProgressEvent) {
			sendProgress(progressChan, evt)
		})
		final := ProgressEvent{Type: EventDone, Message: "import finished", Data: res, Timestamp: c.now()}
		if err != nil {
			final = ProgressEvent{Type: EventError, Message: err.Error(), Data: res, Timestamp: c.now()}
		}
		// 终止事件必须送达，除非调用方已放弃
		select {
		case progressChan <- final:
		case <-ctx.Done():
		}
	}()

	return progressChan
}

// IngestRecord 去重入库：存在性检查、插入、汇总增量在同一事务内完成
func (c *Coordinator) IngestRecord(ctx context.Context, rec *model.PensionerRecord) (model.Outcome, error) {
	outcome := model.OutcomeDuplicate
	err := c.store.WithTx(ctx, func(tx store.Tx) error {
		exists, err := tx.PensionerExists(ctx, rec.PPONumber)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		inserted, err := tx.InsertPensioner(ctx, rec)
		if err != nil {
			return err
		}
		// 并发批次抢先写入了同一 PPO 号
		if !inserted {
			return nil
		}
		if err := c.aggregator.OnInsert(ctx, tx, rec); err != nil {
			return err
		}
		outcome = model.OutcomeInserted
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to ingest %s: %w", rec.PPONumber, err)
	}
	return outcome, nil
}

// run 执行导入逻辑
func (c *Coordinator) run(ctx context.Context, opts ImportOptions, emit func(ProgressEvent)) (*model.BatchResult, error) {
	start := c.now()
	res := &model.BatchResult{BatchID: uuid.NewString(), Filename: opts.name()}
	log := c.logger.WithFields(logrus.Fields{"batch": res.BatchID, "file": res.Filename})

	emit(ProgressEvent{
		Type:      EventStart,
		Message:   fmt.Sprintf("importing %s", res.Filename),
		Data:      map[string]string{"batch_id": res.BatchID, "filename": res.Filename},
		Timestamp: c.now(),
	})

	data, err := opts.read()
	if err != nil {
		err = fmt.Errorf("failed to read %s: %w", res.Filename, err)
		res.FatalError = err.Error()
		res.Duration = c.now().Sub(start)
		return res, err
	}

	sum := sha256.Sum256(data)
	if err := c.store.CreateImportLog(ctx, res.BatchID, res.Filename, int64(len(data)), hex.EncodeToString(sum[:]), start); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		} else {
			err = &StorageFailure{Err: err}
		}
		res.FatalError = err.Error()
		res.Duration = c.now().Sub(start)
		return res, err
	}

	fail := func(err error) (*model.BatchResult, error) {
		res.FatalError = err.Error()
		res.Duration = c.now().Sub(start)
		c.finish(log, res, store.ImportFailed)
		log.WithError(err).Error("import failed")
		return res, err
	}

	wb, err := parser.LoadWorkbookBytes(res.Filename, data)
	if err != nil {
		return fail(err)
	}

	plans, err := c.Plan(wb, opts)
	if err != nil {
		for _, p := range plans {
			res.Add(model.SheetResult{SheetName: p.SheetName, Status: SheetSkipped, Messages: []string{p.Skipped}})
		}
		return fail(err)
	}

	var confidenceSum float64
	var mapped int
	for _, plan := range plans {
		if plan.Mapping == nil {
			res.Add(model.SheetResult{SheetName: plan.SheetName, Status: SheetSkipped, Messages: []string{plan.Skipped}})
			log.WithField("sheet", plan.SheetName).Warn(plan.Skipped)
			emit(ProgressEvent{Type: EventWarning, Message: fmt.Sprintf("sheet %q skipped: %s", plan.SheetName, plan.Skipped), Timestamp: c.now()})
			continue
		}

		if res.DetectedFormat == "" {
			res.DetectedFormat = plan.Mapping.Profile
		}
		confidenceSum += plan.Mapping.Confidence
		mapped++

		sr, err := c.processSheet(ctx, log, res, plan, emit)
		res.Add(sr)
		if err != nil {
			if mapped > 0 {
				res.Confidence = confidenceSum / float64(mapped)
			}
			return fail(err)
		}
	}
	if mapped > 0 {
		res.Confidence = confidenceSum / float64(mapped)
	}

	res.Success = true
	res.Duration = c.now().Sub(start)
	status := store.ImportCompleted
	if res.Errors > 0 {
		status = store.ImportPartial
	}
	c.finish(log, res, status)

	log.WithFields(logrus.Fields{
		"format":     res.DetectedFormat,
		"total":      res.TotalRows,
		"inserted":   res.InsertedRows,
		"duplicates": res.Duplicates,
		"errors":     res.Errors,
		"duration":   res.Duration,
	}).Info("import finished")
	return res, nil
}

// processSheet 顺序处理一个工作表的数据行；只有文件级错误会返回 error
func (c *Coordinator) processSheet(ctx context.Context, log logrus.FieldLogger, res *model.BatchResult, plan SheetPlan, emit func(ProgressEvent)) (model.SheetResult, error) {
	sheetStart := c.now()
	m := plan.Mapping
	sr := model.SheetResult{
		SheetName:      plan.SheetName,
		Status:         SheetImported,
		DetectedFormat: m.Profile,
		Confidence:     m.Confidence,
		Ambiguous:      m.Ambiguous,
	}
	log = log.WithField("sheet", plan.SheetName)

	emit(ProgressEvent{
		Type:    EventSheetStart,
		Message: fmt.Sprintf("sheet %q detected as %s (confidence %.1f)", plan.SheetName, m.Profile, m.Confidence),
		Data: map[string]any{
			"sheet_name": plan.SheetName,
			"format":     m.Profile,
			"confidence": m.Confidence,
			"mapping":    m.Fields,
		},
		Timestamp: c.now(),
	})
	if len(m.Ambiguous) > 0 {
		log.WithField("fields", m.Ambiguous).Warn("ambiguous columns left unmapped")
	}

	consecutive := 0
	for i := m.DataStartRow; i < len(plan.Sheet.Rows); i++ {
		if err := ctx.Err(); err != nil {
			sr.Status = SheetAborted
			sr.Duration = c.now().Sub(sheetStart)
			return sr, err
		}

		cells := plan.Sheet.Rows[i]
		if model.IsBlankRow(cells) {
			continue
		}
		sr.TotalRows++
		rowLog := log.WithField("row", i+1)

		rec, err := c.normalizer.Normalize(cells, m, normalizer.Source{
			File:    res.Filename,
			Sheet:   plan.SheetName,
			Row:     i + 1,
			BatchID: res.BatchID,
		})
		if err != nil {
			sr.Rejected++
			sr.Errors++
			rowLog.WithError(err).Debug("row rejected")
			continue
		}
		if normalizer.GeographyUnresolved(rec) {
			sr.GeoUnresolved++
		}

		outcome, err := c.IngestRecord(ctx, rec)
		switch {
		case err != nil && (store.IsUnavailable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			sr.Status = SheetAborted
			sr.Errors++
			sr.Duration = c.now().Sub(sheetStart)
			if ctx.Err() != nil {
				return sr, ctx.Err()
			}
			return sr, &StorageFailure{Sheet: plan.SheetName, Row: i + 1, Err: err}
		case err != nil:
			sr.Errors++
			consecutive++
			rowLog.WithError(err).WithField("ppo", rec.PPONumber).Warn("row not stored")
			if consecutive >= c.cfg.MaxConsecutiveErrors {
				sr.Status = SheetAborted
				sr.Duration = c.now().Sub(sheetStart)
				return sr, &StorageFailure{
					Sheet: plan.SheetName,
					Row:   i + 1,
					Err:   fmt.Errorf("%d consecutive write failures: %w", consecutive, err),
				}
			}
			continue
		case outcome == model.OutcomeInserted:
			sr.InsertedRows++
		default:
			sr.Duplicates++
		}
		consecutive = 0

		if sr.TotalRows%c.cfg.ProgressEvery == 0 {
			emit(ProgressEvent{
				Type:      EventRows,
				Message:   fmt.Sprintf("sheet %q: %d rows processed", plan.SheetName, sr.TotalRows),
				Data:      sr,
				Timestamp: c.now(),
			})
		}
	}

	sr.Duration = c.now().Sub(sheetStart)
	emit(ProgressEvent{
		Type:      EventSheetDone,
		Message:   fmt.Sprintf("sheet %q: %d inserted, %d duplicates, %d errors", plan.SheetName, sr.InsertedRows, sr.Duplicates, sr.Errors),
		Data:      sr,
		Timestamp: c.now(),
	})
	return sr, nil
}

// finish 写入导入日志；存储已不可用时只记录告警
func (c *Coordinator) finish(log logrus.FieldLogger, res *model.BatchResult, status string) {
	// 调用方取消后仍需落日志
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.FinishImportLog(ctx, res, status, c.now()); err != nil {
		log.WithError(err).Warn("failed to update import log")
	}
}
