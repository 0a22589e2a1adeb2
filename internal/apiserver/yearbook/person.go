package yearbook

import (
	"sort"
	"strings"

	"memoria/internal/shared/model"
)

// Person 年鉴页面上的一个人
type Person struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Image         string `json:"image,omitempty"`
	Quote         string `json:"quote,omitempty"`
	Role          string `json:"role"`
	Type          string `json:"type"`
	YearLevel     string `json:"yearLevel,omitempty"`
	CourseProgram string `json:"courseProgram,omitempty"`
	BlockSection  string `json:"blockSection,omitempty"`
}

// ToPerson 把档案映射为展示用的 Person
func ToPerson(p *model.Profile) Person {
	person := Person{
		ID:            p.ID,
		Name:          p.DisplayName(),
		Role:          roleOf(p),
		Type:          string(p.Type),
		YearLevel:     p.YearLevel,
		CourseProgram: p.CourseProgram,
		BlockSection:  p.BlockSection,
	}
	if info := p.Data.Personal(); info != nil {
		person.Image = info.Image
		person.Quote = info.Quote
		if person.Quote == "" {
			person.Quote = info.Motto
		}
	}
	return person
}

// roleOf 展示的身份：教职工取职位，导师取称谓，校友取毕业年份
func roleOf(p *model.Profile) string {
	d := p.Data
	switch {
	case d.Student != nil:
		return "Student"
	case d.Faculty != nil && d.Faculty.Position != "":
		return d.Faculty.Position
	case d.Staff != nil && d.Staff.Position != "":
		return d.Staff.Position
	case d.Utility != nil && d.Utility.JobTitle != "":
		return d.Utility.JobTitle
	case d.Alumni != nil:
		if d.Alumni.GraduationYear != "" {
			return "Alumni, Batch " + d.Alumni.GraduationYear
		}
		return "Alumni"
	case d.Advisory != nil:
		if d.Advisory.AdviserTitle != "" {
			return d.Advisory.AdviserTitle
		}
		return "Class Adviser"
	}
	return string(p.Type)
}

// SortByName 按姓名排序（不区分大小写），同名按 ID
func SortByName(people []Person) {
	sort.SliceStable(people, func(i, j int) bool {
		a, b := strings.ToLower(people[i].Name), strings.ToLower(people[j].Name)
		if a != b {
			return a < b
		}
		return people[i].ID < people[j].ID
	})
}
