// Package i18n holds the user-facing copy of the batch scheduler: progress
// phrases shown while an operation runs, failure messages and status labels.
package i18n

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"veobatch/internal/domain"
)

var supported = []language.Tag{
	language.English,
	language.Vietnamese,
	language.Indonesian,
}

var matcher = language.NewMatcher(supported)

// progressKeys is cycled by poll iteration. The first entry announces the
// submission, the last one is reserved for completion.
var progressKeys = []string{
	"Initializing video task...",
	"Analyzing your description...",
	"Sketching the initial frames...",
	"Choosing cinematic camera angles...",
	"Rendering the video, this can take a few minutes...",
	"Refining details and motion...",
	"Adding visual effects...",
	"Rendering audio and syncing...",
	"Almost done, packaging your video...",
	"Done! Preparing the download.",
}

const (
	keyStarting      = "Starting..."
	keyDownloading   = "Downloading the video..."
	keyQuotaExceeded = "Your Gemini API quota is exhausted. Check the Google AI dashboard for quota and billing details."
	keyFailed        = "Could not generate the video: %s"
	keyStopped       = "Generation stopped before completion."
	keyTimeout       = "The video did not finish within %s."
	keyUnknownError  = "An unknown error occurred."
)

var translations = map[language.Tag]map[string]string{
	language.Vietnamese: {
		progressKeys[0]:  "Khởi tạo tác vụ video...",
		progressKeys[1]:  "Phân tích mô tả của bạn...",
		progressKeys[2]:  "Phác thảo các khung hình ban đầu...",
		progressKeys[3]:  "Chọn các góc máy quay điện ảnh...",
		progressKeys[4]:  "Bắt đầu kết xuất video, quá trình này có thể mất vài phút...",
		progressKeys[5]:  "Tinh chỉnh các chi tiết và chuyển động...",
		progressKeys[6]:  "Thêm các hiệu ứng hình ảnh...",
		progressKeys[7]:  "Kết xuất âm thanh và đồng bộ hóa...",
		progressKeys[8]:  "Gần hoàn tất, đang đóng gói video của bạn...",
		progressKeys[9]:  "Hoàn tất! Chuẩn bị tải xuống.",
		keyStarting:      "Bắt đầu...",
		keyDownloading:   "Đang tải video về...",
		keyQuotaExceeded: "Hạn mức API Gemini của bạn đã hết. Vui lòng kiểm tra bảng điều khiển Google AI để xem chi tiết về hạn mức và thanh toán.",
		keyFailed:        "Không thể tạo video: %s",
		keyStopped:       "Quá trình tạo đã dừng trước khi hoàn tất.",
		keyTimeout:       "Video không hoàn tất trong %s.",
		keyUnknownError:  "Đã xảy ra lỗi không xác định.",
		"queued":         "Đang chờ",
		"processing":     "Đang xử lý",
		"succeeded":      "Thành công",
		"failed":         "Thất bại",
	},
	language.Indonesian: {
		progressKeys[0]:  "Menginisialisasi tugas video...",
		progressKeys[1]:  "Menganalisis deskripsi Anda...",
		progressKeys[2]:  "Membuat sketsa bingkai awal...",
		progressKeys[3]:  "Memilih sudut kamera sinematik...",
		progressKeys[4]:  "Merender video, proses ini bisa memakan beberapa menit...",
		progressKeys[5]:  "Menyempurnakan detail dan gerakan...",
		progressKeys[6]:  "Menambahkan efek visual...",
		progressKeys[7]:  "Merender audio dan sinkronisasi...",
		progressKeys[8]:  "Hampir selesai, mengemas video Anda...",
		progressKeys[9]:  "Selesai! Menyiapkan unduhan.",
		keyStarting:      "Memulai...",
		keyDownloading:   "Mengunduh video...",
		keyQuotaExceeded: "Kuota API Gemini Anda sudah habis. Periksa dasbor Google AI untuk detail kuota dan penagihan.",
		keyFailed:        "Tidak dapat membuat video: %s",
		keyStopped:       "Pembuatan dihentikan sebelum selesai.",
		keyTimeout:       "Video tidak selesai dalam %s.",
		keyUnknownError:  "Terjadi kesalahan yang tidak diketahui.",
		"queued":         "Menunggu",
		"processing":     "Diproses",
		"succeeded":      "Berhasil",
		"failed":         "Gagal",
	},
	language.English: {
		"queued":     "Queued",
		"processing": "Processing",
		"succeeded":  "Succeeded",
		"failed":     "Failed",
	},
}

func init() {
	for tag, entries := range translations {
		for key, msg := range entries {
			if err := message.SetString(tag, key, msg); err != nil {
				panic(err)
			}
		}
	}
}

// Catalog renders messages for a single locale.
type Catalog struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns the catalog closest to locale, falling back to English.
func New(locale string) *Catalog {
	tag := Match(locale)
	return &Catalog{tag: tag, printer: message.NewPrinter(tag)}
}

// Match resolves a free-form locale ("vi-VN", "id", "en_US") to a supported tag.
func Match(locale string) language.Tag {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" {
		return language.English
	}
	parsed, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, _ := matcher.Match(parsed)
	return supported[idx]
}

// Locale returns the BCP 47 code of the catalog.
func (c *Catalog) Locale() string {
	return c.tag.String()
}

// ProgressPhrases returns the ordered poll phrases.
func (c *Catalog) ProgressPhrases() []string {
	out := make([]string, len(progressKeys))
	for i, key := range progressKeys {
		out[i] = c.printer.Sprintf(key)
	}
	return out
}

// Starting is shown the moment a job is admitted.
func (c *Catalog) Starting() string { return c.printer.Sprintf(keyStarting) }

// Downloading is shown while the result is materialized.
func (c *Catalog) Downloading() string { return c.printer.Sprintf(keyDownloading) }

// QuotaExceeded is the message surfaced for quota exhaustion.
func (c *Catalog) QuotaExceeded() string { return c.printer.Sprintf(keyQuotaExceeded) }

// Stopped is surfaced for jobs interrupted by a scheduler stop.
func (c *Catalog) Stopped() string { return c.printer.Sprintf(keyStopped) }

// Timeout is surfaced when polling exceeds the maximum wait.
func (c *Catalog) Timeout(after string) string { return c.printer.Sprintf(keyTimeout, after) }

// GenerationFailed wraps a failure detail.
func (c *Catalog) GenerationFailed(detail string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		detail = c.printer.Sprintf(keyUnknownError)
	}
	return c.printer.Sprintf(keyFailed, detail)
}

// StatusLabel renders a job status for display.
func (c *Catalog) StatusLabel(status domain.JobStatus) string {
	return c.printer.Sprintf(string(status))
}
