package model

import "fmt"

// TimeBlock is the rough part of day a task belongs to.
type TimeBlock string

const (
	TimeBlockMorning   TimeBlock = "MORNING"
	TimeBlockAfternoon TimeBlock = "AFTERNOON"
	TimeBlockEvening   TimeBlock = "EVENING"
	TimeBlockNight     TimeBlock = "NIGHT"
)

// TimeBlocks lists all blocks in day order.
var TimeBlocks = []TimeBlock{TimeBlockMorning, TimeBlockAfternoon, TimeBlockEvening, TimeBlockNight}

func (b TimeBlock) Valid() bool {
	switch b {
	case TimeBlockMorning, TimeBlockAfternoon, TimeBlockEvening, TimeBlockNight:
		return true
	}
	return false
}

// Order returns the block's position within the day, used for stable sorting.
func (b TimeBlock) Order() int {
	for i, block := range TimeBlocks {
		if block == b {
			return i
		}
	}
	return len(TimeBlocks)
}

func ParseTimeBlock(s string) (TimeBlock, error) {
	b := TimeBlock(s)
	if !b.Valid() {
		return "", fmt.Errorf("unknown time block %q", s)
	}
	return b, nil
}

// Category groups health tasks by area.
type Category string

const (
	CategoryMedication Category = "MEDICATION"
	CategoryExercise   Category = "EXERCISE"
	CategoryDiet       Category = "DIET"
	CategoryMonitoring Category = "MONITORING"
	CategoryLifestyle  Category = "LIFESTYLE"
	CategoryGeneral    Category = "GENERAL"
)

var Categories = []Category{
	CategoryMedication, CategoryExercise, CategoryDiet,
	CategoryMonitoring, CategoryLifestyle, CategoryGeneral,
}

func (c Category) Valid() bool {
	for _, cat := range Categories {
		if cat == c {
			return true
		}
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Priority ranks how important a task is within its day.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Weight returns a numeric rank, higher meaning more important.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown priority %q", s)
	}
	return p, nil
}
