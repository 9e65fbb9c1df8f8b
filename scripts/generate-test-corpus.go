//go:build ignore

// Generates a synthetic procedure corpus for development and benchmarking.
// Usage: go run scripts/generate-test-corpus.go -procedures 200 -output data/chunks.json
//
// The output matches the chunks.json schema: one parent overview chunk per
// procedure plus one child chunk per section type, with procedure codes in
// the code regex shape (N.NNNNNN) so the exact-code fast path is exercised.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numProcedures = flag.Int("procedures", 200, "Number of procedures to generate")
	output        = flag.String("output", "data/chunks.json", "Output chunks file")
	seed          = flag.Int64("seed", 42, "Random seed for reproducibility")
)

type chunk struct {
	ChunkID     string            `json:"chunk_id"`
	ProcedureID string            `json:"procedure_id"`
	Tier        string            `json:"tier"`
	ChunkType   string            `json:"chunk_type"`
	Content     string            `json:"content"`
	TokenCount  int               `json:"token_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

var domains = []string{
	"Hộ tịch", "Đất đai", "Xây dựng", "Doanh nghiệp", "Giao thông", "Y tế", "Giáo dục",
}

var procedureSubjects = []string{
	"đăng ký khai sinh", "cấp giấy chứng nhận quyền sử dụng đất",
	"cấp giấy phép xây dựng", "đăng ký thành lập doanh nghiệp",
	"cấp đổi giấy phép lái xe", "đăng ký kết hôn", "cấp hộ chiếu phổ thông",
	"đăng ký thường trú", "cấp phiếu lý lịch tư pháp", "gia hạn giấy phép lao động",
}

var documentItems = []string{
	"Tờ khai theo mẫu quy định", "Bản sao giấy tờ tùy thân (CMND/CCCD/hộ chiếu)",
	"Giấy ủy quyền trong trường hợp nộp thay", "Bản chính giấy tờ chứng minh nơi cư trú",
	"Ảnh 4x6 nền trắng chụp trong vòng 6 tháng", "Bản sao có chứng thực sổ hộ khẩu",
}

var agencies = []string{
	"Ủy ban nhân dân cấp xã", "Ủy ban nhân dân cấp huyện",
	"Sở Tư pháp", "Sở Tài nguyên và Môi trường", "Phòng Đăng ký kinh doanh",
	"Công an cấp huyện",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	chunks := make([]chunk, 0, *numProcedures*7)
	for i := 0; i < *numProcedures; i++ {
		chunks = append(chunks, generateProcedure(rng, i)...)
	}

	if err := writeChunks(*output, chunks); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d chunks (%d procedures) to %s\n", len(chunks), *numProcedures, *output)
}

func generateProcedure(rng *rand.Rand, n int) []chunk {
	subject := procedureSubjects[n%len(procedureSubjects)]
	domain := domains[n%len(domains)]
	// Code shaped like the national procedure database identifiers.
	code := fmt.Sprintf("%d.%06d", 1+n%2, 100000+n)
	name := fmt.Sprintf("Thủ tục %s (biến thể %d)", subject, n/len(procedureSubjects)+1)
	meta := map[string]string{
		"procedure_name": name,
		"procedure_code": code,
		"domain":         domain,
	}

	days := 3 + rng.Intn(28)
	fee := 20000 * (1 + rng.Intn(15))
	agency := agencies[rng.Intn(len(agencies))]

	sections := []struct {
		chunkType string
		content   string
	}{
		{"overview", fmt.Sprintf(
			"%s. Mã thủ tục: %s. Lĩnh vực: %s. Cơ quan thực hiện: %s. "+
				"Thời hạn giải quyết: %d ngày làm việc kể từ ngày nhận đủ hồ sơ hợp lệ.",
			name, code, domain, agency, days)},
		{"documents", fmt.Sprintf(
			"Thành phần hồ sơ gồm: %s. Số lượng hồ sơ: 01 bộ.",
			strings.Join(pick(rng, documentItems, 3), "; "))},
		{"requirements", fmt.Sprintf(
			"Yêu cầu, điều kiện thực hiện: người yêu cầu %s phải có năng lực hành vi dân sự đầy đủ "+
				"và cư trú hợp pháp tại địa bàn nơi nộp hồ sơ.", subject)},
		{"process", fmt.Sprintf(
			"Trình tự thực hiện: Bước 1, nộp hồ sơ tại %s. Bước 2, cán bộ tiếp nhận kiểm tra tính "+
				"hợp lệ của hồ sơ. Bước 3, nhận kết quả theo giấy hẹn sau %d ngày làm việc.",
			agency, days)},
		{"legal", fmt.Sprintf(
			"Căn cứ pháp lý: Luật số %d/2014/QH13; Nghị định số %d/2015/NĐ-CP; "+
				"Thông tư số %02d/2020/TT-BTP.", 50+rng.Intn(40), 100+rng.Intn(50), 1+rng.Intn(20))},
		{"fees_timing", fmt.Sprintf(
			"Lệ phí: %d đồng. Thời hạn giải quyết: %d ngày làm việc. "+
				"Miễn lệ phí đối với người thuộc hộ nghèo.", fee, days)},
		{"agencies", fmt.Sprintf(
			"Cơ quan thực hiện: %s. Cơ quan phối hợp: %s. Địa chỉ tiếp nhận: Bộ phận một cửa.",
			agency, agencies[rng.Intn(len(agencies))])},
	}

	procID := fmt.Sprintf("proc-%04d", n)
	out := make([]chunk, 0, len(sections))
	for _, s := range sections {
		tier := "child"
		if s.chunkType == "overview" {
			tier = "parent"
		}
		out = append(out, chunk{
			ChunkID:     fmt.Sprintf("%s-%s", procID, s.chunkType),
			ProcedureID: procID,
			Tier:        tier,
			ChunkType:   s.chunkType,
			Content:     s.content,
			TokenCount:  len(strings.Fields(s.content)),
			Metadata:    meta,
		})
	}
	return out
}

func pick(rng *rand.Rand, items []string, n int) []string {
	idx := rng.Perm(len(items))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = items[j]
	}
	return out
}

func writeChunks(path string, chunks []chunk) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"chunks": chunks})
}
