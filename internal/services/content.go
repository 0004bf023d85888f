package services

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DiffCategory classifies the absolute per-question difference between the
// two respondents' answers.
type DiffCategory string

const (
	DiffSame          DiffCategory = "same"
	DiffClose         DiffCategory = "close"
	DiffDifferent     DiffCategory = "different"
	DiffVeryDifferent DiffCategory = "veryDifferent"
)

// Relation classifies a per-dimension delta.
type Relation string

const (
	RelationSimilar   Relation = "similar"
	RelationDifferent Relation = "different"
)

// ScoreBand is one inclusive total-score band shown on the result page.
type ScoreBand struct {
	ID    string `json:"id"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Label string `json:"label"`
}

// Content bundles every fixed lookup table the comparison and scoring
// output depends on. A missing entry for a valid key is a content defect
// and surfaces as a configuration error, never as silently empty text.
type Content struct {
	QuestionNarratives   map[int]map[DiffCategory]string
	DimensionTitles      map[DimensionKey]string
	DimensionNarratives  map[DimensionKey]map[Relation]string
	DimensionDefinitions map[DimensionKey]string
	SimilarityLabels     map[string]string
	Bands                []ScoreBand
	ShareHeader          string
	ShareSimilarTitle    string
	ShareDifferentTitle  string
	ShareDisclaimers     []string
	ShareCTA             string
}

// BandForTotal returns the band whose inclusive range contains total.
func (c *Content) BandForTotal(total int) (ScoreBand, error) {
	for _, b := range c.Bands {
		if total >= b.Min && total <= b.Max {
			return b, nil
		}
	}
	return ScoreBand{}, NewConfigurationError(fmt.Sprintf("no score band covers total %d", total))
}

// QuestionNarrative looks up the canned narrative for a question/category
// pair. A miss is a configuration error.
func (c *Content) QuestionNarrative(index int, cat DiffCategory) (string, error) {
	if byCat, ok := c.QuestionNarratives[index]; ok {
		if s, ok := byCat[cat]; ok {
			return s, nil
		}
	}
	return "", NewConfigurationError(fmt.Sprintf("missing narrative for question %d category %s", index, cat))
}

// DimensionNarrative looks up the relation narrative for a dimension.
func (c *Content) DimensionNarrative(dim DimensionKey, rel Relation) (string, error) {
	if byRel, ok := c.DimensionNarratives[dim]; ok {
		if s, ok := byRel[rel]; ok {
			return s, nil
		}
	}
	return "", NewConfigurationError(fmt.Sprintf("missing narrative for dimension %s relation %s", dim, rel))
}

// ContentProvider fetches the content tables from wherever they live.
type ContentProvider interface {
	FetchContent() (*Content, error)
}

// ContentCache is a process-wide read-through cache over a provider.
// Population is deduplicated so N concurrent first readers trigger exactly
// one fetch; after population the content is read-only.
type ContentCache struct {
	provider ContentProvider
	group    singleflight.Group
	mu       sync.RWMutex
	content  *Content
}

func NewContentCache(p ContentProvider) *ContentCache {
	return &ContentCache{provider: p}
}

// Get returns the cached content, fetching it on first use.
func (c *ContentCache) Get() (*Content, error) {
	c.mu.RLock()
	cached := c.content
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	v, err, _ := c.group.Do("content", func() (any, error) {
		c.mu.RLock()
		cached := c.content
		c.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		fetched, err := c.provider.FetchContent()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.content = fetched
		c.mu.Unlock()
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Content), nil
}

// Invalidate drops the cached tables so the next Get refetches.
func (c *ContentCache) Invalidate() {
	c.mu.Lock()
	c.content = nil
	c.mu.Unlock()
}

// StaticContentProvider serves the embedded Persian content tables.
type StaticContentProvider struct{}

func (StaticContentProvider) FetchContent() (*Content, error) {
	return defaultContent(), nil
}

// questionTopics are the short noun phrases the per-question narratives
// are written around, in question order.
var questionTopics = [QuestionCount]string{
	"تکرار افکار در ذهن",
	"فکر کردن به اشتباهات گذشته",
	"نگرانی درباره اتفاقات آینده",
	"مرور ذهنی بحث‌ها و گفتگوها",
	"درگیری ذهن با «ای کاش»های گذشته",
	"متوقف نشدن ذهن هنگام مشکلات",
	"تصور بدترین حالت ممکن",
	"سبک‌سنگین کردن حرف‌های دیگران",
	"بازگشت ناگهانی خاطرات ناخوشایند",
	"دشواری رها کردن یک فکر",
	"کنار گذاشتن نگرانی از آینده",
	"آرام شدن ذهن بعد از تعارض",
}

func defaultContent() *Content {
	qn := make(map[int]map[DiffCategory]string, QuestionCount)
	for i, topic := range questionTopics {
		qn[i] = map[DiffCategory]string{
			DiffSame:          fmt.Sprintf("شما دو نفر در «%s» تجربه یکسانی دارید.", topic),
			DiffClose:         fmt.Sprintf("تجربه شما دو نفر در «%s» بسیار به هم نزدیک است.", topic),
			DiffDifferent:     fmt.Sprintf("یکی از شما بیش از دیگری با «%s» درگیر است.", topic),
			DiffVeryDifferent: fmt.Sprintf("تجربه شما دو نفر از «%s» کاملاً متفاوت است.", topic),
		}
	}
	return &Content{
		QuestionNarratives: qn,
		DimensionTitles: map[DimensionKey]string{
			DimStickiness:    "چسبندگی ذهنی",
			DimPastBrooding:  "نشخوار گذشته",
			DimFutureWorry:   "نگرانی از آینده",
			DimInterpersonal: "حساسیت بین‌فردی",
		},
		DimensionNarratives: map[DimensionKey]map[Relation]string{
			DimStickiness: {
				RelationSimilar:   "ذهن هر دوی شما تقریباً به یک اندازه به افکار می‌چسبد؛ این شباهت می‌تواند درک متقابل شما را آسان‌تر کند.",
				RelationDifferent: "افکار در ذهن یکی از شما بسیار بیشتر از دیگری باقی می‌مانند؛ دانستن این تفاوت به صبوری با هم کمک می‌کند.",
			},
			DimPastBrooding: {
				RelationSimilar:   "هر دوی شما به شکلی مشابه با گذشته کنار می‌آیید و این نقطه اشتراک خوبی برای گفتگو است.",
				RelationDifferent: "گذشته برای یکی از شما پررنگ‌تر از دیگری است؛ این تفاوت را نشانه ضعف هیچ‌کدام ندانید.",
			},
			DimFutureWorry: {
				RelationSimilar:   "نگرانی شما دو نفر درباره آینده هم‌اندازه است؛ می‌توانید برنامه‌ریزی مشترک را جایگزین نگرانی کنید.",
				RelationDifferent: "یکی از شما بیشتر نگران آینده است؛ نفر آرام‌تر می‌تواند تکیه‌گاه خوبی در لحظه‌های نگرانی باشد.",
			},
			DimInterpersonal: {
				RelationSimilar:   "هر دوی شما روابط را با حساسیتی مشابه مرور می‌کنید؛ این شباهت زبان مشترکی برای حل تعارض می‌سازد.",
				RelationDifferent: "مرور روابط برای یکی از شما طولانی‌تر است؛ شفاف حرف زدن بعد از تعارض به هر دوی شما کمک می‌کند.",
			},
		},
		DimensionDefinitions: map[DimensionKey]string{
			DimStickiness:    "چسبندگی ذهنی یعنی ماندگاری ناخواسته یک فکر در ذهن، حتی وقتی می‌خواهیم رهایش کنیم.",
			DimPastBrooding:  "نشخوار گذشته یعنی مرور مکرر خاطره‌ها و اشتباه‌های قبلی بدون رسیدن به نتیجه تازه.",
			DimFutureWorry:   "نگرانی از آینده یعنی درگیری ذهن با اتفاق‌هایی که هنوز نیفتاده‌اند و شاید هرگز نیفتند.",
			DimInterpersonal: "حساسیت بین‌فردی یعنی مرور طولانی گفتگوها و واکنش دیگران پس از یک تعامل.",
		},
		SimilarityLabels: map[string]string{
			"high":           "شباهت زیاد",
			"medium":         "شباهت متوسط",
			"low":            "شباهت کم",
			"very_different": "تفاوت زیاد",
		},
		Bands: []ScoreBand{
			{ID: "calm", Min: 0, Max: 16, Label: "ذهن نسبتاً آرام"},
			{ID: "moderate", Min: 17, Max: 32, Label: "نشخوار ذهنی متوسط"},
			{ID: "high", Min: 33, Max: MaxTotalScore, Label: "نشخوار ذهنی زیاد"},
		},
		ShareHeader:         "نتیجه مقایسه ذهن ما دو نفر در هم‌دل:",
		ShareSimilarTitle:   "شبیه هم هستیم در:",
		ShareDifferentTitle: "متفاوتیم در:",
		ShareDisclaimers: []string{
			"این آزمون یک ابزار خودشناسی است و جایگزین ارزیابی تخصصی نیست.",
			"اگر افکار آزاردهنده مداوم دارید، با یک متخصص سلامت روان گفتگو کنید.",
		},
		ShareCTA: "تو هم آزمون را در hamdel.app انجام بده.",
	}
}
